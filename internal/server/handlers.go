// Package server exposes trace analysis as MCP tools.
package server

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/phobologic/phpconsistent/internal/config"
	"github.com/phobologic/phpconsistent/internal/engine"
	"github.com/phobologic/phpconsistent/internal/model"
	"github.com/phobologic/phpconsistent/internal/ranking"
	"github.com/phobologic/phpconsistent/internal/resolver"
	"github.com/phobologic/phpconsistent/internal/toon"
	"github.com/phobologic/phpconsistent/internal/typecheck"
)

// Handlers holds the state shared by the tool handlers: the base
// configuration and a cache of source indexes keyed by root.
type Handlers struct {
	cfg config.Config
	log *zap.Logger

	mu      sync.Mutex
	indexes map[string]*indexEntry
}

// indexEntry loads one root at most once. Callers for other roots never wait
// on it.
type indexEntry struct {
	once sync.Once
	ix   *resolver.Index
	err  error
}

// NewHandlers returns handlers that start from cfg for every request.
func NewHandlers(cfg config.Config, log *zap.Logger) *Handlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{cfg: cfg, log: log, indexes: make(map[string]*indexEntry)}
}

// index loads the sources under root once and reuses the index afterwards.
// A failed load is forgotten so the next request retries it.
func (h *Handlers) index(ctx context.Context, root string) (*resolver.Index, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	entry, ok := h.indexes[abs]
	if !ok {
		entry = &indexEntry{}
		h.indexes[abs] = entry
	}
	h.mu.Unlock()

	entry.once.Do(func() {
		entry.ix, entry.err = resolver.Load(ctx, abs, resolver.Options{Workers: h.cfg.Workers, Logger: h.log})
	})
	if entry.err != nil {
		h.mu.Lock()
		if h.indexes[abs] == entry {
			delete(h.indexes, abs)
		}
		h.mu.Unlock()
		return nil, entry.err
	}
	return entry.ix, nil
}

// analyzeTraceHandler handles requests for the 'analyze_trace' tool.
func (h *Handlers) analyzeTraceHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tracePath, err := request.RequireString("trace")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := h.cfg
	cfg.SourceRoot = request.GetString("source_root", cfg.SourceRoot)
	cfg.Depth = request.GetInt("depth", cfg.Depth)
	cfg.IgnoreNull = request.GetBool("ignore_null", cfg.IgnoreNull)
	cfg.RemoveTrace = false
	if err := cfg.Validate(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ix, err := h.index(ctx, cfg.SourceRoot)
	if err != nil {
		return mcp.NewToolResultError("Failed to index sources: " + err.Error()), nil
	}

	res, err := engine.New(cfg, ix, engine.WithLogger(h.log)).AnalyzeFile(ctx, tracePath)
	if err != nil {
		return mcp.NewToolResultError("Failed to analyze trace: " + err.Error()), nil
	}
	if res.Missing {
		return mcp.NewToolResultError("Trace not found: " + tracePath), nil
	}

	top := request.GetInt("top", 0)
	var hotspots []ranking.Hotspot
	if top > 0 {
		hotspots = ranking.Hotspots(res.Failures, top)
	}
	return mcp.NewToolResultText(toon.EncodeReport([]engine.Result{res}, hotspots)), nil
}

// CompareResult is the structured output of the 'compare_types' tool.
type CompareResult struct {
	Observed   string `json:"observed"`
	Normalized string `json:"normalized"`
	Declared   string `json:"declared"`
	Matches    bool   `json:"matches"`
}

// compareTypesHandler handles requests for the 'compare_types' tool.
func (h *Handlers) compareTypesHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	observed, err := request.RequireString("observed")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	declared, err := request.RequireString("declared")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cmp := &typecheck.Comparator{IgnoreNull: request.GetBool("ignore_null", h.cfg.IgnoreNull)}
	if root := request.GetString("source_root", ""); root != "" {
		ix, err := h.index(ctx, root)
		if err != nil {
			return mcp.NewToolResultError("Failed to index sources: " + err.Error()), nil
		}
		cmp.Hierarchy = ix
	}

	normalized := typecheck.Normalize(observed)
	out := CompareResult{
		Observed:   observed,
		Normalized: normalized,
		Declared:   declared,
		Matches:    cmp.Matches(normalized, model.TypeExpression(declared)),
	}
	return mcp.NewToolResultStructured(out, "compare_types"), nil
}

// SignatureResult is the structured output of the 'resolve_signature' tool.
type SignatureResult struct {
	Target     string   `json:"target"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	Params     []string `json:"params"`
	Defined    []string `json:"defined"`
	Return     string   `json:"return,omitempty"`
	Suppressed bool     `json:"suppressed"`
}

// resolveSignatureHandler handles requests for the 'resolve_signature' tool.
func (h *Handlers) resolveSignatureHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := request.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ix, err := h.index(ctx, request.GetString("source_root", h.cfg.SourceRoot))
	if err != nil {
		return mcp.NewToolResultError("Failed to index sources: " + err.Error()), nil
	}

	decl, ok := ix.Lookup(target)
	if !ok {
		return mcp.NewToolResultError("No declaration found for " + target), nil
	}
	sig, _ := ix.Resolve(target)

	out := SignatureResult{
		Target:     resolver.TargetID(decl),
		File:       decl.File,
		Line:       decl.Line,
		Defined:    sig.DefinedParams,
		Suppressed: sig.Suppressed,
	}
	for _, p := range sig.Params {
		out.Params = append(out.Params, strings.TrimSpace(string(p.Type)+" "+p.Name))
	}
	if sig.HasReturn {
		out.Return = string(sig.Return)
	}
	return mcp.NewToolResultStructured(out, "resolve_signature"), nil
}

// RegisterTools defines all tools on the server and registers their handlers.
func RegisterTools(s *server.MCPServer, h *Handlers) {
	analyzeTool := mcp.NewTool("analyze_trace",
		mcp.WithDescription("Check a PHP Xdebug computerized trace (.xt) against the docblocks of the traced code. Reports every call whose argument count, parameter names or argument types disagree with its @param tags, and every return value that disagrees with its @return tag. Output is a TOON report."),
		mcp.WithString("trace", mcp.Required(), mcp.Description("Path to the trace file. The .xt extension may be omitted.")),
		mcp.WithString("source_root", mcp.Description("Directory holding the PHP sources whose docblocks describe the traced code")),
		mcp.WithNumber("depth", mcp.Description("Nesting levels below the trace entry point to check (default 10)")),
		mcp.WithBoolean("ignore_null", mcp.Description("Accept null wherever a type is declared")),
		mcp.WithNumber("top", mcp.Description("Also list the N targets with the most failures")),
	)
	s.AddTool(analyzeTool, h.analyzeTraceHandler)

	compareTool := mcp.NewTool("compare_types",
		mcp.WithDescription("Decide whether a value type as recorded in a trace (e.g. 'string(5)', 'long', 'class App\\User') satisfies a docblock type expression (e.g. 'int|null', 'object', 'Countable')."),
		mcp.WithString("observed", mcp.Required(), mcp.Description("Type token as it appears in the trace")),
		mcp.WithString("declared", mcp.Required(), mcp.Description("Docblock type expression, alternatives separated by '|'")),
		mcp.WithBoolean("ignore_null", mcp.Description("Accept null wherever a type is declared")),
		mcp.WithString("source_root", mcp.Description("PHP sources used to expand class hierarchies")),
	)
	s.AddTool(compareTool, h.compareTypesHandler)

	resolveTool := mcp.NewTool("resolve_signature",
		mcp.WithDescription("Show the documented signature used to check calls to a function or method, as resolved from the PHP sources (inherited methods included)."),
		mcp.WithString("target", mcp.Required(), mcp.Description("Trace target id, e.g. 'App\\Cart->add', 'App\\Cart::make' or 'format_price'")),
		mcp.WithString("source_root", mcp.Description("Directory holding the PHP sources")),
	)
	s.AddTool(resolveTool, h.resolveSignatureHandler)
}

// New creates an MCP server with every tool registered.
func New(name, version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)
	RegisterTools(s, h)
	return s
}
