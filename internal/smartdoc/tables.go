package smartdoc

import (
	"slices"
	"strings"

	"formintel/pkg/models"
)

// Reconstruction is the structured data recovered from one table.
type Reconstruction struct {
	Family []models.FamilyMember
	Travel []models.TravelRecord
}

// TableReconstructor turns rows of cells into records. It returns nil when the
// header row does not carry its signals. Output is best effort and never
// overrides an explicit form field.
type TableReconstructor interface {
	Name() string
	Reconstruct(rows [][]string) *Reconstruction
}

// DefaultReconstructors returns the family-member and travel-history heuristics.
func DefaultReconstructors() []TableReconstructor {
	return []TableReconstructor{FamilyTable{}, TravelTable{}}
}

// columnFinder locates header columns by keyword.
type columnFinder []string

func (h columnFinder) find(keywords ...string) int {
	return h.findExcept(nil, keywords...)
}

func (h columnFinder) findExcept(skip []int, keywords ...string) int {
	for i, cell := range h {
		if slices.Contains(skip, i) {
			continue
		}
		c := strings.ToLower(cell)
		for _, kw := range keywords {
			if strings.Contains(c, kw) {
				return i
			}
		}
	}
	return -1
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// FamilyTable recognizes tables with a name column and a relationship column.
type FamilyTable struct{}

// Name implements TableReconstructor.
func (FamilyTable) Name() string { return "family" }

// Reconstruct implements TableReconstructor.
func (FamilyTable) Reconstruct(rows [][]string) *Reconstruction {
	if len(rows) < 2 {
		return nil
	}
	header := columnFinder(rows[0])
	rel := header.find("relationship", "relation", "relative")
	if rel < 0 {
		return nil
	}
	name := header.findExcept([]int{rel}, "name")
	if name < 0 {
		return nil
	}
	dob := header.find("date of birth", "birth", "dob")
	nationality := header.find("nationality", "citizenship")
	occupation := header.find("occupation", "profession", "job")

	out := &Reconstruction{}
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		member := models.FamilyMember{
			Name:         cellAt(row, name),
			Relationship: cellAt(row, rel),
			DOB:          cellAt(row, dob),
			Nationality:  cellAt(row, nationality),
			Occupation:   cellAt(row, occupation),
		}
		if member.Name == "" && member.Relationship == "" {
			continue
		}
		out.Family = append(out.Family, member)
	}
	return out
}

// TravelTable recognizes tables with a country or destination column and a date column.
type TravelTable struct{}

// Name implements TableReconstructor.
func (TravelTable) Name() string { return "travel" }

// Reconstruct implements TableReconstructor.
func (TravelTable) Reconstruct(rows [][]string) *Reconstruction {
	if len(rows) < 2 {
		return nil
	}
	header := columnFinder(rows[0])
	country := header.find("country", "destination", "place visited")
	if country < 0 {
		return nil
	}
	from := header.find("from", "arrival", "entry", "start", "date of visit")
	to := header.find("to ", "until", "departure", "exit", "end")
	if to < 0 {
		to = header.findExcept([]int{country, from}, "to")
	}
	if from < 0 {
		from = header.findExcept([]int{country, to}, "date", "year")
	}
	if from < 0 && to < 0 {
		return nil
	}
	purpose := header.find("purpose", "reason")

	out := &Reconstruction{}
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		record := models.TravelRecord{
			Country:  cellAt(row, country),
			FromDate: cellAt(row, from),
			ToDate:   cellAt(row, to),
			Purpose:  cellAt(row, purpose),
		}
		if record.Country == "" {
			continue
		}
		out.Travel = append(out.Travel, record)
	}
	return out
}
