package gallery

import (
	"encoding/xml"
	"strings"
)

const (
	// atomNamespace is the Atom syndication namespace used by the feed.
	atomNamespace = "http://www.w3.org/2005/Atom"
	// dataNamespace holds the package properties.
	dataNamespace = "http://schemas.microsoft.com/ado/2007/08/dataservices"
	// metadataNamespace wraps the property bag.
	metadataNamespace = "http://schemas.microsoft.com/ado/2007/08/dataservices/metadata"
)

// feed is one page of an OData Atom response.
type feed struct {
	XMLName xml.Name `xml:"http://www.w3.org/2005/Atom feed"`
	Entries []entry  `xml:"http://www.w3.org/2005/Atom entry"`
	Links   []link   `xml:"http://www.w3.org/2005/Atom link"`
}

// entry is a single package version.
type entry struct {
	Title      string     `xml:"http://www.w3.org/2005/Atom title"`
	Content    content    `xml:"http://www.w3.org/2005/Atom content"`
	Properties properties `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices/metadata properties"`
}

type content struct {
	Type string `xml:"type,attr"`
	Src  string `xml:"src,attr"`
}

type link struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

// properties are the package fields the synchronizer needs.
type properties struct {
	ID                   string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Id"`
	Version              string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices Version"`
	NormalizedVersion    string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices NormalizedVersion"`
	IsPrerelease         string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices IsPrerelease"`
	PackageHash          string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices PackageHash"`
	PackageHashAlgorithm string `xml:"http://schemas.microsoft.com/ado/2007/08/dataservices PackageHashAlgorithm"`
}

// next returns the href of the next page, if any.
func (f *feed) next() string {
	for _, l := range f.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}

	return ""
}

// name returns the package id, falling back to the entry title.
func (e *entry) name() string {
	if e.Properties.ID != "" {
		return e.Properties.ID
	}

	return strings.TrimSpace(e.Title)
}

// rawVersion prefers the normalized version string.
func (e *entry) rawVersion() string {
	if e.Properties.NormalizedVersion != "" {
		return e.Properties.NormalizedVersion
	}

	return e.Properties.Version
}

func (e *entry) prerelease() bool {
	return strings.EqualFold(strings.TrimSpace(e.Properties.IsPrerelease), "true")
}
