package parser

import (
	"fmt"

	"github.com/dshills/ficherag/pkg/types"
)

// chapterNames maps the two-digit chapter code to its display name
var chapterNames = map[string]string{
	"01": "Attitude et comportement",
	"02": "Bilans",
	"03": "Protection et sécurité",
	"04": "Hygiène et asepsie",
	"05": "Urgences vitales",
	"06": "Malaises et affections spécifiques",
	"07": "Atteintes liées aux circonstances",
	"08": "Traumatismes",
	"09": "Souffrance psychique et comportements inhabituels",
	"10": "Relevage et brancardage",
	"11": "Situations avec de multiples victimes",
}

type ficheTypeInfo struct {
	kind types.FicheType
	name string
}

var ficheTypes = map[string]ficheTypeInfo{
	"AC": {kind: types.FicheKnowledge, name: "Apport de connaissances"},
	"PR": {kind: types.FicheProcedure, name: "Procédure"},
	"FT": {kind: types.FicheTechnique, name: "Fiche technique"},
}

// ChapterName returns the display name for a chapter code, or "Chapitre <code>" when unknown
func ChapterName(code string) string {
	if name, ok := chapterNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Chapitre %s", code)
}

// FicheType returns the enum and display name for a two-letter type code
func FicheType(code string) (types.FicheType, string) {
	if info, ok := ficheTypes[code]; ok {
		return info.kind, info.name
	}
	return types.FicheUnknown, fmt.Sprintf("Type %s", code)
}
