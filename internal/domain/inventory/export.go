package inventory

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "库存报表"

// ExportReport renders every batch into an xlsx workbook for the periodic
// inventory report.
func (s *Service) ExportReport(ctx context.Context) (*bytes.Buffer, error) {
	batches, _, err := s.ListAllBatches(ctx, 10000, 0)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"药品ID", "批号", "当前库存", "预留", "锁定", "可用", "进价", "库存成本", "有效期至", "状态"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	for row, b := range batches {
		values := []interface{}{
			b.MedicineID.String(), b.BatchNumber,
			b.CurrentStock, b.ReservedStock, b.LockedStock, b.AvailableStock,
			b.PurchasePrice, b.InventoryCost,
			b.ExpiryDate.Format("2006-01-02"), string(b.Status),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(exportSheet, cell, v)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 38)
	_ = f.SetColWidth(exportSheet, "B", "J", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return buf, nil
}
