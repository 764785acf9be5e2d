package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zhouzirui/emi-live/backend/internal/model/live"
)

// Handler 执行一次工具调用，返回可 JSON 序列化的结果。
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool 一项能力：声明加处理函数。
type Tool struct {
	Declaration live.FunctionDeclaration
	Handler     Handler
}

// Registry 静态能力表，连接建立前注册完毕。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, tool := range tools {
		r.Register(tool)
	}
	return r
}

// Register 同名工具会被覆盖。
func (r *Registry) Register(tool Tool) {
	if tool.Declaration.Name == "" || tool.Handler == nil {
		panic(fmt.Sprintf("tools: invalid registration %q", tool.Declaration.Name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Declaration.Name] = tool
}

func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Catalog 返回握手帧中的工具目录，按名称排序；没有工具时返回 nil。
func (r *Registry) Catalog() []live.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tools) == 0 {
		return nil
	}

	decls := make([]live.FunctionDeclaration, 0, len(r.tools))
	for _, tool := range r.tools {
		decls = append(decls, tool.Declaration)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return []live.Tool{{FunctionDeclarations: decls}}
}
