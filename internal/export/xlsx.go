package export

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/treeline-forestry/dta-cli/internal/model"
)

// WriteWorkbook renders the general header block and the form rows into
// an XLSX workbook at path.
func WriteWorkbook(general model.GeneralInfo, rows []Row, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("DTA Field Data")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	writeHeaderBlock(sheet, general)
	writeColumnHeaders(sheet)
	for _, row := range rows {
		writeRow(sheet, row)
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

func writeHeaderBlock(sheet *xlsx.Sheet, general model.GeneralInfo) {
	addPairs := func(pairs ...string) {
		r := sheet.AddRow()
		for _, v := range pairs {
			r.AddCell().Value = v
		}
	}

	addPairs("DANGER TREE ASSESSMENT FIELD DATA")
	addPairs("District", general.Get("district"), "Location", general.Get("location"))
	addPairs("Licensee/CP", general.Get("licenseeCp"), "Block", general.Get("block"))
	addPairs("Assessor's Name", general.Get("assessorName"), "Date", general.Get("date"))
	addPairs("Certificate #", general.Get("certificateNumber"), "Map Attached", mark(general.Get("mapAttached") != ""))
	addPairs("Activity", general.Get("activity"), "Level of Disturbance", general.Get("levelOfDisturbance"))
	addPairs("Other Reference", general.Get("otherReference"))
	sheet.AddRow()
}

func writeColumnHeaders(sheet *xlsx.Sheet) {
	r := sheet.AddRow()
	headers := []string{
		"Tree #", "Species", "Tree Class", "Wildlife Value", "Tree Height (m)", "Diameter (cm)",
	}
	headers = append(headers, LOD1Columns...)
	headers = append(headers, LOD23Columns...)
	headers = append(headers, "RST (radius x 0.3)", "AST (cm)")
	headers = append(headers, LOD4Columns...)
	headers = append(headers, "Overall Rating (S or D)",
		"Safe - no action required", "Dangerous - Install NWZ", "Other (remove hazardous part)",
		"Action completed")
	for _, h := range headers {
		r.AddCell().Value = h
	}
}

func writeRow(sheet *xlsx.Sheet, row Row) {
	r := sheet.AddRow()
	r.AddCell().Value = strconv.Itoa(row.TreeNumber)
	for _, v := range []string{row.Species, row.TreeClass, row.WildlifeValue, row.TreeHeight, row.Diameter} {
		r.AddCell().Value = v
	}
	for _, checked := range row.LOD1Checks {
		r.AddCell().Value = mark(checked)
	}
	for _, checked := range row.LOD23Checks {
		r.AddCell().Value = mark(checked)
	}
	r.AddCell().Value = row.RST
	r.AddCell().Value = row.AST
	for _, checked := range row.LOD4Checks {
		r.AddCell().Value = mark(checked)
	}
	r.AddCell().Value = row.OverallRating
	r.AddCell().Value = mark(row.SafeFlag)
	r.AddCell().Value = mark(row.NWZFlag)
	r.AddCell().Value = mark(row.OtherFlag)
	r.AddCell().Value = row.ActionDate
}

func mark(checked bool) string {
	if checked {
		return "X"
	}
	return ""
}
