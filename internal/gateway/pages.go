package gateway

import (
	"html/template"
	"net/http"

	"github.com/jacl-coder/PixelStorm-Scoreboard/web"
)

// PageHandler 静态页面处理器
type PageHandler struct {
	templates *template.Template
}

// NewPageHandler 创建页面处理器
func NewPageHandler(templates *template.Template) *PageHandler {
	return &PageHandler{templates: templates}
}

// RegisterHandlers 注册HTTP处理器
func (h *PageHandler) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /start", h.page(web.StartTemplate))
	mux.HandleFunc("GET /game", h.page(web.GameTemplate))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
}

func (h *PageHandler) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, h.templates, name, nil)
	}
}
