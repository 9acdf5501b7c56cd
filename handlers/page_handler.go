package handlers

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"nester/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pageFuncs = template.FuncMap{
	"pretty": func(raw []byte) string {
		if len(raw) == 0 {
			return ""
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "    "); err != nil {
			return string(raw)
		}
		return buf.String()
	},
	"stamp": models.FormatTimestamp,
}

func pageTemplate() *template.Template {
	return template.Must(template.New("").Funcs(pageFuncs).ParseFS(templatesFS, "templates/*.html"))
}

// ServeHTML renders the results table, filtered by the search form.
func (h *ScanHandler) ServeHTML(c *gin.Context) {
	term := searchTerm(c)
	results, err := h.Collector.Page(c.Request.Context(), term, 0, 0)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "database error: %s", err.Error())
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"title":   "Nester",
		"search":  term,
		"results": results,
	})
}
