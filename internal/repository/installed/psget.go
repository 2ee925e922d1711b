package installed

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PSGetInfoFilename is the metadata PowerShellGet writes next to every module it installs.
const PSGetInfoFilename = "PSGetModuleInfo.xml"

// PSGetInfo holds the PowerShellGet fields the registry needs.
type PSGetInfo struct {
	// Name is the module name as published.
	Name string
	// Version is the installed version.
	Version string
	// Repository is the repository name, e.g. PSGallery.
	Repository string
	// RepositorySourceLocation is the repository URL the module came from.
	RepositorySourceLocation string
}

// cliXMLObjects is the Export-Clixml document root.
type cliXMLObjects struct {
	Objects []cliXMLObject `xml:"Obj"`
}

type cliXMLObject struct {
	Strings  []cliXMLProperty `xml:"MS>S"`
	Versions []cliXMLProperty `xml:"MS>Version"`
}

type cliXMLProperty struct {
	Name  string `xml:"N,attr"`
	Value string `xml:",chardata"`
}

// ReadPSGetInfo loads PSGetModuleInfo.xml from a version directory.
func ReadPSGetInfo(versionDir string) (*PSGetInfo, error) {
	file, err := os.Open(filepath.Join(versionDir, PSGetInfoFilename))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	var document cliXMLObjects
	if err = xml.NewDecoder(file).Decode(&document); err != nil {
		return nil, fmt.Errorf("decode %s in %s: %w", PSGetInfoFilename, versionDir, err)
	}

	info := new(PSGetInfo)

	for _, object := range document.Objects {
		properties := make([]cliXMLProperty, 0, len(object.Strings)+len(object.Versions))
		properties = append(properties, object.Strings...)
		properties = append(properties, object.Versions...)

		for _, property := range properties {
			value := strings.TrimSpace(property.Value)

			switch property.Name {
			case "Name":
				info.Name = value
			case "Version":
				info.Version = value
			case "Repository":
				info.Repository = value
			case "RepositorySourceLocation":
				info.RepositorySourceLocation = value
			}
		}
	}

	return info, nil
}
