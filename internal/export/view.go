package export

import (
	"fmt"
	"html/template"
	"time"

	"clausebook/api/internal/contract"
)

// TemplateView is the template data for a rendered contract template.
type TemplateView struct {
	Name      string
	Revision  int64
	Version   string
	UpdatedBy string
	UpdatedAt time.Time
	Sections  []SectionView
}

type SectionView struct {
	Number      int
	ID          string
	Title       string
	Variant     string
	VariantNote string
	Icon        string
	Options     []OptionView
}

type OptionView struct {
	Label            string
	ShowLabel        bool
	Summary          string
	ShortDescription string
	Icon             string
	BodyHTML         template.HTML
	Mutex            bool
	SubOptions       []SubOptionView
}

type SubOptionView struct {
	Number   int
	BodyHTML template.HTML
}

func variantNote(s contract.Section) string {
	switch s.Variant {
	case contract.VariantFixed:
		return "Always included"
	case contract.VariantOptional:
		return "Included when selected"
	default:
		return fmt.Sprintf("Choose one of %d options", len(s.Options))
	}
}

// BuildView flattens a template into render-ready data. Body HTML is the
// stored rendering of each node, which is already escaped.
func BuildView(tpl Template) TemplateView {
	view := TemplateView{
		Name:      tpl.Name,
		Revision:  tpl.Revision,
		Version:   tpl.Version,
		UpdatedBy: tpl.UpdatedBy,
		UpdatedAt: tpl.UpdatedAt,
	}
	if tpl.Tree == nil {
		return view
	}
	for i, s := range tpl.Tree.Sections() {
		sv := SectionView{
			Number:      i + 1,
			ID:          s.ID,
			Title:       s.Title,
			Variant:     string(s.Variant),
			VariantNote: variantNote(s),
			Icon:        string(s.Icon),
		}
		for oi, o := range s.Options {
			ov := OptionView{
				Label:            contract.DisplayLabel(oi),
				ShowLabel:        s.Variant == contract.VariantDynamic,
				Summary:          o.Summary,
				ShortDescription: o.ShortDescription,
				Icon:             string(o.Icon),
				BodyHTML:         template.HTML(o.BodyHTML),
				Mutex:            o.MutexSubOptions,
			}
			for si, sub := range o.SubOptions {
				ov.SubOptions = append(ov.SubOptions, SubOptionView{Number: si + 1, BodyHTML: template.HTML(sub.BodyHTML)})
			}
			sv.Options = append(sv.Options, ov)
		}
		view.Sections = append(view.Sections, sv)
	}
	return view
}
