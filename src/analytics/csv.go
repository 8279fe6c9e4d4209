package analytics

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"timestamp", "processingTime", "deviceInfo", "imageSizeBytes", "success", "error"}

// WriteCSV 导出日志，字段按 RFC 4180 转义
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		record := []string{
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(e.ProcessingTime, 10),
			e.DeviceInfo,
			strconv.FormatInt(e.ImageSize, 10),
			strconv.FormatBool(e.Success),
			e.Error,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
