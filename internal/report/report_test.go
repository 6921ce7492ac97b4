package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/coredb"
)

func testDataset() *coredb.Dataset {
	return &coredb.Dataset{
		Clients: []coredb.Client{
			{ID: "1", Name: "テスト工業株式会社", Kana: "てすとこうぎょう"},
			{ID: "2", Name: "サンプル精機", Kana: "さんぷるせいき"},
		},
		ClientDetails: []coredb.ClientDetail{{ID: "10", ClientID: "1"}},
		Contacts: []coredb.Contact{
			{Name: "山田太郎", DetailID: "10", Department: "製造部", Role: "部長"},
		},
		Quotes: []coredb.Quote{
			{No: "100", ProjectNo: "1001", Name: "搬送装置一式", Device: "搬送装置", CreatedDate: "2025-01-10 00:00:00", Won: true},
			{No: "101", ProjectNo: "1001", Name: "予備見積", Device: "搬送装置", Rejected: true},
			{No: "102", ProjectNo: "1002", Name: "検査治具", Device: "検査治具", CreatedDate: "2025-03-01 00:00:00"},
		},
		QuoteLines: []coredb.QuoteLine{
			{QuoteNo: "100", Item: "フレーム", Qty: "2", UnitPrice: "150,000"},
			{QuoteNo: "100", Item: "制御盤", Qty: "1", UnitPrice: "1,200,000"},
			{QuoteNo: "102", Item: "治具本体", Qty: "3", UnitPrice: "80,000"},
		},
		Projects: []coredb.Project{
			{No: "1001", Name: "搬送ライン更新", ClientID: "1", DeliveryID: "20", StartDate: "2025-01-05 00:00:00"},
			{No: "1002", Name: "検査治具製作", ClientID: "2", DeliveryManual: "直納", StartDate: "2025-02-20 00:00:00"},
		},
		DeliverySites: []coredb.DeliverySite{
			{ID: "20", Name: "テスト工業 本社工場", Kana: "てすとこうぎょう"},
		},
		Orders:         []coredb.Order{{ProjectNo: "1001", ProgressID: "2", OrderForecast: "2025-02", DeliveryForecast: "2025-05"}},
		ProgressStates: []coredb.ProgressState{{ID: "1", Name: "設計中"}, {ID: "2", Name: "製作中"}},
	}
}

func testTree(t *testing.T) *Tree {
	t.Helper()
	root := t.TempDir()
	projDir := filepath.Join(root, "projects")
	proj := filepath.Join(projDir, "2025", "M1001_搬送ライン更新")
	require.NoError(t, os.MkdirAll(proj, 0o755))
	for _, name := range []string{"layout.dwg", "仕様書.pdf", "写真.jpg", "部品表.xlsx", "memo.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(proj, name), []byte("x"), 0o644))
	}
	etcDir := filepath.Join(root, "etc")
	require.NoError(t, os.MkdirAll(etcDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(etcDir, "連絡先一覧.xlsx"), []byte("x"), 0o644))
	return &Tree{ProjectDir: projDir, EtcDir: etcDir}
}

func newReporter(t *testing.T) (*Reporter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return &Reporter{Data: testDataset(), Tree: testTree(t), Out: &buf}, &buf
}

func TestCustomer_Profile(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Customer("テスト工業"))
	out := buf.String()

	assert.Contains(t, out, "Customer profile: テスト工業株式会社")
	assert.Contains(t, out, "Projects: 1")
	assert.Contains(t, out, "Won: 1")
	assert.Contains(t, out, "Rejected: 1")
	assert.Contains(t, out, "Win rate: 50.0%")
	assert.Contains(t, out, "¥1,500,000")
	assert.Contains(t, out, "搬送装置: 2")
	assert.Contains(t, out, "No.1001")
	assert.Contains(t, out, "[won]")
	assert.Contains(t, out, "テスト工業 本社工場")
	assert.Contains(t, out, "山田太郎")
	assert.Contains(t, out, "M1001_搬送ライン更新")
}

func TestCustomer_FallbackToProjectSearch(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Customer("検査治具"))
	out := buf.String()

	assert.Contains(t, out, "Searching projects")
	assert.Contains(t, out, "No.1002")
	assert.Contains(t, out, "サンプル精機")
}

func TestCustomer_NoMatchAtAll(t *testing.T) {
	r, _ := newReporter(t)
	err := r.Customer("存在しない会社")
	assert.Error(t, err)
}

func TestProject_ByNumber(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Project("M1001"))
	out := buf.String()

	assert.Contains(t, out, "Project No.1001: 搬送ライン更新")
	assert.Contains(t, out, "Client: テスト工業株式会社")
	assert.Contains(t, out, "Delivery site: テスト工業 本社工場")
	assert.Contains(t, out, "Quote No.100")
	assert.Contains(t, out, "[won]")
	assert.Contains(t, out, "フレーム x2")
	assert.Contains(t, out, "Progress: 製作中")
	assert.Contains(t, out, "cad: 1")
	assert.Contains(t, out, "pdf: 1")
}

func TestProject_ByName(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Project("検査治具製作"))
	out := buf.String()

	assert.Contains(t, out, "Project No.1002")
	assert.Contains(t, out, "Delivery site: 直納")
}

func TestProject_NotFound(t *testing.T) {
	r, _ := newReporter(t)
	err := r.Project("9999")
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Summary())
	out := buf.String()

	assert.Contains(t, out, "Clients: 2")
	assert.Contains(t, out, "Projects: 2")
	assert.Contains(t, out, "Quotes: 3 (won 1 / rejected 1 / pending 1)")
	assert.Contains(t, out, "テスト工業株式会社: ¥1,500,000")
}

func TestSearch(t *testing.T) {
	r, buf := newReporter(t)
	require.NoError(t, r.Search("搬送"))
	out := buf.String()
	assert.Contains(t, out, "M1001_搬送ライン更新")

	buf.Reset()
	require.NoError(t, r.Search("連絡先"))
	assert.Contains(t, buf.String(), "連絡先一覧.xlsx")
}

func TestSearch_NoMatches(t *testing.T) {
	r, _ := newReporter(t)
	err := r.Search("zzz-not-there")
	assert.Error(t, err)
}

func TestTree_FindProjectFolders(t *testing.T) {
	tree := testTree(t)
	folders := tree.FindProjectFolders("m1001")
	require.Len(t, folders, 1)
	assert.Equal(t, 5, folders[0].Files)
}

func TestTree_FileTypes(t *testing.T) {
	tree := testTree(t)
	folders := tree.FindProjectFolders("M1001")
	require.Len(t, folders, 1)

	types := tree.FileTypes(folders[0].Path)
	assert.Equal(t, []string{"layout.dwg"}, types["cad"])
	assert.Equal(t, []string{"仕様書.pdf"}, types["pdf"])
	assert.Equal(t, []string{"写真.jpg"}, types["image"])
	assert.Equal(t, []string{"部品表.xlsx"}, types["excel"])
	assert.Equal(t, []string{"memo.md"}, types["other"])
}

func TestTree_SearchDepthLimit(t *testing.T) {
	root := t.TempDir()
	deep := filepath.Join(root, "a", "b", "c", "d", "e")
	require.NoError(t, os.MkdirAll(deep, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(deep, "target.txt"), []byte("x"), 0o644))
	shallow := filepath.Join(root, "a")
	require.NoError(t, os.WriteFile(filepath.Join(shallow, "target.txt"), []byte("x"), 0o644))

	tree := &Tree{ProjectDir: root}
	results := tree.SearchKeyword("target")
	require.Len(t, results, 1)
	assert.Contains(t, results[0], filepath.Join("a", "target.txt"))
}

func TestYen(t *testing.T) {
	assert.Equal(t, "¥0", yen(0))
	assert.Equal(t, "¥999", yen(999))
	assert.Equal(t, "¥1,500,000", yen(1_500_000))
	assert.Equal(t, "¥12,345,678", yen(12_345_678.4))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, "1012", extractNumber("M1012"))
	assert.Equal(t, "25051", extractNumber("25051"))
	assert.Equal(t, "", extractNumber("no digits"))
}
