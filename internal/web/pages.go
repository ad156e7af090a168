package web

import (
	"html/template"
	"strings"

	"github.com/agrilens/agrilens-go/internal/flow"
	"github.com/agrilens/agrilens-go/internal/history"
)

// pageData is common to every page.
type pageData struct {
	AppName string
	Title   string
	Page    string // nav entry to highlight
}

func (s *Server) page(title, page string) pageData {
	name := s.Settings.Main.Name
	if name == "" {
		name = "AgriLens"
	}
	return pageData{AppName: name, Title: title, Page: page}
}

type homePage struct {
	pageData
	ServiceOnline  bool
	ServiceMessage string
}

type cropField struct {
	flow.FieldSpec
	Value string
}

type cropPage struct {
	pageData
	Nutrients   []cropField // N, P, K
	Environment []cropField
	View        flow.CropView
}

func newCropPage(base pageData, view flow.CropView) cropPage {
	p := cropPage{pageData: base, View: view}
	for _, spec := range flow.CropFields {
		f := cropField{FieldSpec: spec, Value: view.Values[spec.Field]}
		switch spec.Field {
		case flow.FieldNitrogen, flow.FieldPhosphorus, flow.FieldPotassium:
			p.Nutrients = append(p.Nutrients, f)
		default:
			p.Environment = append(p.Environment, f)
		}
	}
	return p
}

type diseasePage struct {
	pageData
	View       flow.UploadView
	PreviewURL template.URL
	MaxSizeMB  int64
}

func newDiseasePage(base pageData, view flow.UploadView) diseasePage {
	p := diseasePage{
		pageData:  base,
		View:      view,
		MaxSizeMB: flow.MaxImageBytes / (1024 * 1024),
	}
	// Only data URLs carrying an image are trusted in the img src.
	if strings.HasPrefix(view.Preview, "data:image/") {
		p.PreviewURL = template.URL(view.Preview)
	}
	return p
}

type historyPage struct {
	pageData
	View *history.View
	Tab  string // "crop" or "disease"; both tabs are rendered
}

type errorPage struct {
	pageData
	Code    int
	Message string
}
