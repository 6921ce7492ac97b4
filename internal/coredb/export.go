package coredb

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
)

// tableNames are the Access tables exported on every refresh. The
// reports only consume a subset; the rest are exported so a cache
// refresh is a complete snapshot of the source database.
var tableNames = []string{
	"販売先", "販売先詳細", "販売先担当", "見積書", "見積書詳細",
	"プロジェクトデータ", "納品先", "納品先詳細", "進捗状況", "受注一覧表",
	"注文書", "注文書詳細", "仕入先", "ML", "ML詳細", "ML担当",
}

// exportRunner runs mdb-export for one table and returns its CSV output.
type exportRunner func(ctx context.Context, dbPath, table string) ([]byte, error)

func runMDBExport(ctx context.Context, dbPath, table string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "mdb-export", dbPath, table)
	cmd.Env = append(cmd.Environ(), "MDB_ICONV=UTF-8")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("mdb-export %s: %w", table, err)
	}
	return out, nil
}

// row is one CSV record keyed by header name.
type row map[string]string

func parseCSV(data []byte) ([]row, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	var rows []row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		m := make(row, len(header))
		for i, h := range header {
			if i < len(rec) {
				m[h] = rec[i]
			}
		}
		rows = append(rows, m)
	}
	return rows, nil
}

// export pulls every table from the Access file and assembles the
// typed dataset. A table that fails to export is logged and treated as
// empty so one broken table does not sink the whole report.
func export(ctx context.Context, run exportRunner, dbPath string) (*Dataset, error) {
	tables := make(map[string][]row, len(tableNames))
	for _, name := range tableNames {
		out, err := run(ctx, dbPath, name)
		if err != nil {
			log.Printf("[CoreDB] Export of %s failed: %v", name, err)
			continue
		}
		rows, err := parseCSV(out)
		if err != nil {
			log.Printf("[CoreDB] Cannot parse %s: %v", name, err)
			continue
		}
		tables[name] = rows
	}
	if len(tables["販売先"]) == 0 && len(tables["プロジェクトデータ"]) == 0 {
		return nil, fmt.Errorf("no data exported from %s (is mdb-tools installed?)", dbPath)
	}
	return buildDataset(tables), nil
}

func buildDataset(tables map[string][]row) *Dataset {
	d := &Dataset{}
	for _, r := range tables["販売先"] {
		d.Clients = append(d.Clients, Client{
			ID:   r["販売先ID"],
			Name: r["販売先"],
			Kana: r["ふりがな"],
		})
	}
	for _, r := range tables["販売先詳細"] {
		d.ClientDetails = append(d.ClientDetails, ClientDetail{
			ID:       r["販売先詳細ID"],
			ClientID: r["販売先ID"],
		})
	}
	for _, r := range tables["販売先担当"] {
		d.Contacts = append(d.Contacts, Contact{
			Name:       r["販売先担当"],
			DetailID:   r["販売先詳細ID"],
			Department: r["部署"],
			Role:       r["役職"],
		})
	}
	for _, r := range tables["見積書"] {
		d.Quotes = append(d.Quotes, Quote{
			No:           r["見積書No"],
			ProjectNo:    r["プロジェクトNo"],
			Name:         r["名称"],
			Device:       strings.TrimSpace(r["装置名"]),
			MachineNo:    r["マシンNo"],
			CreatedDate:  r["見積書作成日"],
			OrderDate:    r["受注日"],
			DeliveryDate: r["納品日"],
			Won:          r["受注"] == "1",
			Rejected:     r["却下"] == "1",
		})
	}
	for _, r := range tables["見積書詳細"] {
		d.QuoteLines = append(d.QuoteLines, QuoteLine{
			QuoteNo:   r["見積書No"],
			Item:      r["商品名"],
			Qty:       r["数量"],
			UnitPrice: r["単価"],
		})
	}
	for _, r := range tables["プロジェクトデータ"] {
		d.Projects = append(d.Projects, Project{
			No:             r["プロジェクトNo"],
			Name:           r["プロジェクト名"],
			ClientID:       r["販売先ID"],
			DeliveryID:     r["納品先ID"],
			DeliveryManual: r["納品先手入力"],
			StartDate:      r["開始日"],
			MLID:           r["MLID"],
		})
	}
	for _, r := range tables["納品先"] {
		d.DeliverySites = append(d.DeliverySites, DeliverySite{
			ID:   r["納品先ID"],
			Name: r["納品先"],
			Kana: r["ふりがな"],
		})
	}
	for _, r := range tables["受注一覧表"] {
		d.Orders = append(d.Orders, Order{
			ProjectNo:        r["プロジェクトNo"],
			ProgressID:       r["進捗状況"],
			OrderForecast:    r["受注予定"],
			DeliveryForecast: r["納品予定"],
		})
	}
	for _, r := range tables["進捗状況"] {
		d.ProgressStates = append(d.ProgressStates, ProgressState{
			ID:   r["ID"],
			Name: r["進捗状況"],
		})
	}
	return d
}
