// Package web 内嵌页面模板和前端静态资源
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 页面模板名称
const (
	IndexTemplate = "index.html"
	StartTemplate = "start.html"
	GameTemplate  = "game.html"
)

// Templates 解析全部页面模板
func Templates() (*template.Template, error) {
	return template.New("pages").Funcs(template.FuncMap{
		"inc": func(i int) int { return i + 1 },
	}).ParseFS(templateFS, "templates/*.html")
}

// Static 静态资源文件系统，根目录为 static/
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
