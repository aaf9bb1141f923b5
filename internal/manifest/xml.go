package manifest

import "encoding/xml"

// The rawXXX types mirror the manifest XML grammar directly; loadFragment
// decodes into these before resolve folds in inheritance and include
// expansion.

type rawManifest struct {
	XMLName        xml.Name        `xml:"manifest"`
	Remotes        []rawRemote     `xml:"remote"`
	Default        *rawDefault     `xml:"default"`
	Notice         *rawNotice      `xml:"notice"`
	ManifestServer *rawServer      `xml:"manifest-server"`
	Projects       []rawProject    `xml:"project"`
	ExtendProjects []rawExtend     `xml:"extend-project"`
	RemoveProjects []rawRemove     `xml:"remove-project"`
	RepoHooks      *rawRepoHooks   `xml:"repo-hooks"`
	Includes       []rawInclude    `xml:"include"`
}

type rawRemote struct {
	Name     string `xml:"name,attr"`
	Alias    string `xml:"alias,attr"`
	Fetch    string `xml:"fetch,attr"`
	Review   string `xml:"review,attr"`
	Revision string `xml:"revision,attr"`
}

type rawDefault struct {
	Remote     string `xml:"remote,attr"`
	Revision   string `xml:"revision,attr"`
	DestBranch string `xml:"dest-branch,attr"`
	SyncJ      string `xml:"sync-j,attr"`
	SyncC      string `xml:"sync-c,attr"`
	SyncS      string `xml:"sync-s,attr"`
}

type rawNotice struct {
	Text string `xml:",chardata"`
}

type rawServer struct {
	URL string `xml:"url,attr"`
}

type rawInclude struct {
	Name string `xml:"name,attr"`
}

type rawExtend struct {
	Name   string `xml:"name,attr"`
	Path   string `xml:"path,attr"`
	Groups string `xml:"groups,attr"`
}

type rawRemove struct {
	Name string `xml:"name,attr"`
}

type rawRepoHooks struct {
	InProject   string `xml:"in-project,attr"`
	EnabledList string `xml:"enabled-list,attr"`
}

type rawProject struct {
	Name       string `xml:"name,attr"`
	Path       string `xml:"path,attr"`
	Remote     string `xml:"remote,attr"`
	Revision   string `xml:"revision,attr"`
	DestBranch string `xml:"dest-branch,attr"`
	Upstream   string `xml:"upstream,attr"`
	Groups     string `xml:"groups,attr"`
	Rebase     string `xml:"rebase,attr"`
	SyncC      string `xml:"sync-c,attr"`
	SyncS      string `xml:"sync-s,attr"`
	CloneDepth string `xml:"clone-depth,attr"`
	ForcePath  string `xml:"force-path,attr"`

	CopyFiles   []rawCopyFile   `xml:"copyfile"`
	LinkFiles   []rawLinkFile   `xml:"linkfile"`
	Annotations []rawAnnotation `xml:"annotation"`
	Projects    []rawProject    `xml:"project"`
}

type rawCopyFile struct {
	Src  string `xml:"src,attr"`
	Dest string `xml:"dest,attr"`
}

type rawLinkFile struct {
	Src  string `xml:"src,attr"`
	Dest string `xml:"dest,attr"`
}

type rawAnnotation struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
	Keep  string `xml:"keep,attr"`
}

func decodeManifest(data []byte) (*rawManifest, error) {
	var m rawManifest
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
