package status

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	appLog "github.com/lingtimeone/BAOYAN-Calendar/internal/log"
)

// TimestampLayout is how the generation time is printed on the page.
const TimestampLayout = "2006-01-02 15:04:05"

const rawHost = "https://raw.githubusercontent.com"

//go:embed readme.md.tmpl
var pageTemplate string

var tmpl = template.Must(template.New("status").Parse(pageTemplate))

// Page holds the values substituted into the status document.
type Page struct {
	LastUpdated string
	ViewerURL   string
	ImagePath   string
}

// RawURL is the public raw-content URL of file on the given branch.
func RawURL(owner, repo, branch, file string) string {
	return rawHost + "/" + url.PathEscape(owner) + "/" + url.PathEscape(repo) + "/" +
		url.PathEscape(branch) + "/" + strings.TrimLeft(filepath.ToSlash(file), "/")
}

// ViewerURL points the hosted calendar viewer at calendarURL.
func ViewerURL(viewerBase, calendarURL string) string {
	return strings.TrimRight(viewerBase, "/") + "/calendar.html?url=" + url.QueryEscape(calendarURL)
}

// Timestamp formats now in a fixed offset of offsetHours from UTC.
func Timestamp(now time.Time, offsetHours int) string {
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*60*60)
	return now.In(zone).Format(TimestampLayout)
}

// Render writes the status document for p to w.
func Render(w io.Writer, p Page) error {
	return tmpl.Execute(w, p)
}

// Write renders p and replaces the file at path.
func Write(path string, p Page) error {
	var buf bytes.Buffer
	if err := Render(&buf, p); err != nil {
		return fmt.Errorf("render status page: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	appLog.Info("status page written", "path", path, "last_updated", p.LastUpdated)
	return nil
}
