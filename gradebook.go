package klypt

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// GradebookSheet is the sheet name used in the workbook.
const GradebookSheet = "Gradebook"

// ExportGradebook writes an xlsx workbook with one row per enrolled
// student and one column per klyp, cells holding the submitted score.
// Unsubmitted or missing attempts leave the cell empty.
func (k *Klypt) ExportGradebook(ctx context.Context, classCode string) (*excelize.File, error) {
	class, err := k.reconciler.ClassByCode(ctx, classCode)
	if err != nil {
		return nil, err
	}
	klyps, err := k.klyps.QueryBy(ctx, []string{"classCode"}, []string{classCode})
	if err != nil {
		return nil, err
	}
	sort.Slice(klyps, func(i, j int) bool {
		if klyps[i].CreatedAt != klyps[j].CreatedAt {
			return klyps[i].CreatedAt < klyps[j].CreatedAt
		}
		return klyps[i].ID < klyps[j].ID
	})
	attempts, err := k.attempts.QueryBy(ctx, []string{"classCode"}, []string{classCode})
	if err != nil {
		return nil, err
	}
	// (studentId, klypId) -> best submitted score
	scores := map[[2]string]int64{}
	for _, a := range attempts {
		if !a.IsSubmitted || a.Score == nil {
			continue
		}
		key := [2]string{a.StudentID, a.KlypID}
		if best, ok := scores[key]; !ok || *a.Score > best {
			scores[key] = *a.Score
		}
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", GradebookSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	setCell := func(col, row int, val string) error {
		name, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellStr(GradebookSheet, name, val)
	}
	if err := setCell(1, 1, "Student"); err != nil {
		return nil, err
	}
	for c, klyp := range klyps {
		title := klyp.Title
		if title == "" {
			title = klyp.ID
		}
		if err := setCell(c+2, 1, title); err != nil {
			return nil, err
		}
	}
	end, _ := excelize.CoordinatesToCellName(len(klyps)+1, 1)
	_ = f.SetCellStyle(GradebookSheet, "A1", end, bold)

	for r, studentID := range class.StudentIDs {
		label := studentID
		student, err := k.students.Get(ctx, studentID)
		if err == nil {
			label = student.FirstName + " " + student.LastName
		} else if !isNotFound(err) {
			return nil, err
		}
		if err := setCell(1, r+2, label); err != nil {
			return nil, err
		}
		for c, klyp := range klyps {
			if score, ok := scores[[2]string{studentID, klyp.ID}]; ok {
				if err := setCell(c+2, r+2, strconv.FormatInt(score, 10)); err != nil {
					return nil, err
				}
			}
		}
	}
	if len(class.StudentIDs) == 0 && len(klyps) == 0 {
		k.log.WarnCtx(ctx, "gradebook exported empty", "classCode", classCode)
	}
	return f, nil
}
