/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package inputfile decodes and schema-validates a JSON batch of InputFiles
// for the `link` CLI verb. The linker library itself never reads
// JSON directly -- this is CLI-boundary plumbing feeding linker.FullLinkInput.
package inputfile

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bennypowers.dev/cem/internal/linker"
)

//go:embed schemas/batch.json
var embeddedSchema embed.FS

// Dep mirrors linker.DepEntry in the batch's wire format.
type Dep struct {
	Package   string `json:"package"`
	Unordered bool   `json:"unordered"`
}

// InstallOptions mirrors linker.InstallOptions in the batch's wire format.
type InstallOptions struct {
	Data map[string]any `json:"data"`
}

// DepInfo mirrors linker.DepInfo in the batch's wire format.
type DepInfo struct {
	Dynamic bool `json:"dynamic"`
}

// File is one entry of Batch.Files.
type File struct {
	Source         string              `json:"source"`
	Hash           string              `json:"hash"`
	SourcePath     string              `json:"sourcePath"`
	ServePath      string              `json:"servePath"`
	AbsModuleId    *string             `json:"absModuleId"`
	AliasId        *string             `json:"aliasId"`
	Lazy           bool                `json:"lazy"`
	Imported       string              `json:"imported"`
	MainModule     bool                `json:"mainModule"`
	Bare           bool                `json:"bare"`
	JSONData       map[string]any      `json:"jsonData"`
	Deps           map[string]DepInfo  `json:"deps"`
	InstallOptions *InstallOptions     `json:"installOptions"`
}

// Batch is the top-level JSON document `link <batch.json>` reads.
type Batch struct {
	IsApp                        bool     `json:"isApp"`
	Name                         string   `json:"name"`
	BundleArch                   string   `json:"bundleArch"`
	CombinedServePath            string   `json:"combinedServePath"`
	DeclaredExports              []string `json:"declaredExports"`
	Deps                         []Dep    `json:"deps"`
	IncludeSourceMapInstructions bool     `json:"includeSourceMapInstructions"`
	Files                        []File   `json:"files"`
}

func importKindFromString(s string) linker.ImportKind {
	switch s {
	case "static":
		return linker.ImportedStatic
	case "dynamic":
		return linker.ImportedDynamic
	default:
		return linker.ImportedNone
	}
}

// ParseBatch validates data against the embedded batch schema and decodes
// it into a linker.FullLinkInput ready for linker.FullLink.
func ParseBatch(data []byte) (linker.FullLinkInput, error) {
	if err := validateBatch(data); err != nil {
		return linker.FullLinkInput{}, err
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return linker.FullLinkInput{}, fmt.Errorf("inputfile: decoding batch: %w", err)
	}

	inputFiles := make([]*linker.InputFile, len(batch.Files))
	for i, f := range batch.Files {
		var opts *linker.InstallOptions
		if f.InstallOptions != nil {
			opts = &linker.InstallOptions{Data: f.InstallOptions.Data}
		}

		deps := make(map[string]linker.DepInfo, len(f.Deps))
		for id, d := range f.Deps {
			deps[id] = linker.DepInfo{Dynamic: d.Dynamic}
		}

		inputFiles[i] = &linker.InputFile{
			Source:         []byte(f.Source),
			Hash:           f.Hash,
			SourcePath:     f.SourcePath,
			ServePath:      f.ServePath,
			AbsModuleId:    f.AbsModuleId,
			AliasId:        f.AliasId,
			Deps:           deps,
			Lazy:           f.Lazy,
			Imported:       importKindFromString(f.Imported),
			MainModule:     f.MainModule,
			Bare:           f.Bare,
			JSONData:       f.JSONData,
			InstallOptions: opts,
		}
	}

	deps := make([]linker.DepEntry, len(batch.Deps))
	for i, d := range batch.Deps {
		deps[i] = linker.DepEntry{Package: d.Package, Unordered: d.Unordered}
	}

	return linker.FullLinkInput{
		InputFiles:                   inputFiles,
		IsApp:                        batch.IsApp,
		BundleArch:                   batch.BundleArch,
		CombinedServePath:            batch.CombinedServePath,
		Name:                         batch.Name,
		DeclaredExports:              batch.DeclaredExports,
		IncludeSourceMapInstructions: batch.IncludeSourceMapInstructions,
		Deps:                         deps,
	}, nil
}

func validateBatch(data []byte) error {
	schemaData, err := embeddedSchema.ReadFile("schemas/batch.json")
	if err != nil {
		return fmt.Errorf("inputfile: reading embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("batch.json", bytes.NewReader(schemaData)); err != nil {
		return fmt.Errorf("inputfile: adding schema resource: %w", err)
	}
	schema, err := compiler.Compile("batch.json")
	if err != nil {
		return fmt.Errorf("inputfile: compiling schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("inputfile: decoding batch for validation: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("inputfile: batch failed schema validation: %w", err)
	}
	return nil
}
