package httpapi

import (
	"bytes"
	"fmt"
	"time"

	"wisefido-crisis/internal/domain"

	"github.com/xuri/excelize/v2"
)

// MessageHistoryExportHeader 导出表头
var MessageHistoryExportHeader = []string{
	"Created At",
	"Direction",
	"Counterparty",
	"Status",
	"Crisis",
	"Body",
	"Delivered At",
	"External ID",
	"Failure Reason",
}

var historyColumnWidths = []float64{20, 10, 18, 11, 8, 60, 20, 38, 30}

const historySheet = "SMS History"

// GenerateMessageHistoryExport 生成短信历史 Excel；无消息时只有表头
func GenerateMessageHistoryExport(msgs []*domain.Message) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 前不能关闭文件

	index, err := f.NewSheet(historySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE2E1"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range MessageHistoryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(historySheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(historySheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(historySheet, name, name, historyColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, m := range msgs {
		row := i + 2 // 第 1 行是表头
		crisis := "No"
		if m.CrisisFlag {
			crisis = "Yes"
		}
		values := []any{
			formatTime(&m.CreatedAt),
			string(m.Direction),
			m.CounterpartyAddress,
			string(m.Status),
			crisis,
			m.Body,
			formatTime(m.DeliveredAt),
			m.ExternalMessageID,
			m.FailureReason,
		}
		for col, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(historySheet, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell value at row %d, col %d: %w", row, col+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(historySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
