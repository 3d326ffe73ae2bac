package registry

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const viewersCSV = `Viewer,Account_Type,Total_Gifts,Last_Gift_Time,Trust_Level
viewer_1,new,0,,new
viewer_2,verified,4500,2026-03-10 18:30,trusted
viewer_3,Creator,120.0,2026-03-11 09:05:00,normal
`

const creatorsCSV = `Creator,Views,Likes,Shares,Points,Category
Alice,1200,300,10,120,dance
Bob,50000,4000,250,900,comedy
`

var sg, _ = time.LoadLocation("Asia/Singapore")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseViewers(t *testing.T) {
	viewers, err := ParseViewers(strings.NewReader(viewersCSV), sg)
	require.NoError(t, err)
	require.Len(t, viewers, 3)

	assert.Equal(t, Viewer{Name: "viewer_1", AccountType: "new", TrustLevel: "new"}, viewers[0])
	assert.Equal(t, int64(4500), viewers[1].TotalGifts)
	require.NotNil(t, viewers[1].LastGiftTime)
	assert.Equal(t, time.Date(2026, 3, 10, 18, 30, 0, 0, sg), *viewers[1].LastGiftTime)
	assert.Equal(t, int64(120), viewers[2].TotalGifts)
	assert.Equal(t, "Creator", viewers[2].AccountType)
}

func TestParseViewers_MissingColumn(t *testing.T) {
	_, err := ParseViewers(strings.NewReader("Viewer,Account_Type\nv,new\n"), sg)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseViewers_BadNumber(t *testing.T) {
	_, err := ParseViewers(strings.NewReader("Viewer,Account_Type,Total_Gifts,Last_Gift_Time,Trust_Level\nv,new,lots,,new\n"), sg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 Total_Gifts")
}

func TestParseCreators_ColumnOrderAndExtras(t *testing.T) {
	creators, err := ParseCreators(strings.NewReader(creatorsCSV))
	require.NoError(t, err)
	require.Len(t, creators, 2)
	assert.Equal(t, Creator{Name: "Bob", Views: 50000, Likes: 4000, Shares: 250, Points: 900}, creators[1])
}

func TestLoadFiles_FallbackWhenMissing(t *testing.T) {
	dir := t.TempDir()
	reg, err := LoadFiles(filepath.Join(dir, "nope_viewers.csv"), filepath.Join(dir, "nope_creators.csv"), sg, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, FallbackViewers(), reg.Viewers())
	assert.Equal(t, FallbackCreators(), reg.Creators())

	rec, ok := reg.LookupViewer("viewer_1")
	assert.True(t, ok)
	assert.Equal(t, "new", rec.AccountType)
}

func TestLoadFiles_FromDisk(t *testing.T) {
	dir := t.TempDir()
	vp := filepath.Join(dir, "viewers.csv")
	cp := filepath.Join(dir, "creators.csv")
	require.NoError(t, os.WriteFile(vp, []byte(viewersCSV), 0o600))
	require.NoError(t, os.WriteFile(cp, []byte(creatorsCSV), 0o600))

	reg, err := LoadFiles(vp, cp, sg, quietLogger())
	require.NoError(t, err)
	assert.Len(t, reg.Viewers(), 3)
	assert.Equal(t, []string{"Alice", "Bob"}, reg.CreatorNames())
}

func TestLoadFiles_CorruptFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	vp := filepath.Join(dir, "viewers.csv")
	require.NoError(t, os.WriteFile(vp, []byte("Name,Type\nx,y\n"), 0o600))

	_, err := LoadFiles(vp, filepath.Join(dir, "creators.csv"), sg, quietLogger())
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLookupViewer_CaseSensitive(t *testing.T) {
	reg := NewMemoryRegistry([]Viewer{{Name: "viewer_2", AccountType: "verified", TotalGifts: 10, TrustLevel: "trusted"}}, nil)

	rec, ok := reg.LookupViewer("viewer_2")
	require.True(t, ok)
	assert.Equal(t, int64(10), rec.TotalGifts)

	_, ok = reg.LookupViewer("VIEWER_2")
	assert.False(t, ok)
}

func TestCreatorLookup(t *testing.T) {
	reg := NewMemoryRegistry(nil, FallbackCreators())

	c, err := reg.Creator("Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), c.Views)

	_, err = reg.Creator("Mallory")
	assert.ErrorIs(t, err, ErrCreatorNotFound)
}

func doGET(handler gin.HandlerFunc, route, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	r.GET(route, handler)
	c.Request = httptest.NewRequest(http.MethodGet, target, nil)
	r.ServeHTTP(w, c.Request)
	return w
}

func TestHandler_ListCreatorsWithLimit(t *testing.T) {
	creators, err := ParseCreators(strings.NewReader(creatorsCSV))
	require.NoError(t, err)
	h := NewHandler(NewMemoryRegistry(FallbackViewers(), creators))

	w := doGET(h.ListCreators, "/creators", "/creators?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Creators []Creator `json:"creators"`
		Count    int       `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Alice", body.Creators[0].Name)
}

func TestHandler_ListViewers(t *testing.T) {
	h := NewHandler(NewMemoryRegistry(FallbackViewers(), FallbackCreators()))

	w := doGET(h.ListViewers, "/viewers", "/viewers?limit=50")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"viewer_1"`)
}
