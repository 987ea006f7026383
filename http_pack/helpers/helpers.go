package helpers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/modulrcloud/chain-tracker/structures"
	"github.com/modulrcloud/chain-tracker/utils"

	"github.com/valyala/fasthttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type successResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func setJSONHeaders(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.SetContentType("application/json")
}

func WriteErr(ctx *fasthttp.RequestCtx, status int, msg string) {
	setJSONHeaders(ctx)
	ctx.SetStatusCode(status)
	if payload, err := json.Marshal(errResponse{Status: statusError, Message: msg}); err == nil {
		ctx.Write(payload)
		return
	}
	ctx.Write([]byte(`{"status":"error","message":"marshal failed"}`))
}

// WriteSuccess wraps data in the success envelope.
func WriteSuccess(ctx *fasthttp.RequestCtx, data any) {
	WriteJSON(ctx, fasthttp.StatusOK, successResponse{Status: statusSuccess, Data: data})
}

// WriteSuccessCached is WriteSuccess plus a blake3 ETag. A matching
// If-None-Match gets an empty 304.
func WriteSuccessCached(ctx *fasthttp.RequestCtx, data any) {

	payload, err := json.Marshal(successResponse{Status: statusSuccess, Data: data})
	if err != nil {
		WriteErr(ctx, fasthttp.StatusInternalServerError, "Failed to marshal response")
		return
	}

	etag := `"` + utils.Blake3(payload) + `"`

	setJSONHeaders(ctx)
	ctx.Response.Header.Set(fasthttp.HeaderETag, etag)

	if strings.Contains(string(ctx.Request.Header.Peek(fasthttp.HeaderIfNoneMatch)), etag) {
		ctx.SetStatusCode(fasthttp.StatusNotModified)
		return
	}

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.Write(payload)
}

func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	setJSONHeaders(ctx)
	data, err := json.Marshal(v)
	if err != nil {
		WriteErr(ctx, fasthttp.StatusInternalServerError, "Failed to marshal response")
		return
	}
	ctx.SetStatusCode(status)
	ctx.Write(data)
}

// QueryInt reads an integer query argument. ok is false when the argument is
// present but not an integer; a missing argument yields (0, true).
func QueryInt(ctx *fasthttp.RequestCtx, name string) (value int, ok bool) {

	raw := ctx.QueryArgs().Peek(name)

	if len(raw) == 0 {
		return 0, true
	}

	parsed, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}

	return parsed, true
}

// QueryBlock reads a block-number query argument, decimal or 0x hex.
// present is false when the argument is missing.
func QueryBlock(ctx *fasthttp.RequestCtx, name string) (value uint64, present bool, err error) {

	raw := ctx.QueryArgs().Peek(name)

	if len(raw) == 0 {
		return 0, false, nil
	}

	value, err = structures.ParseUint64(string(raw))

	return value, true, err
}

// QueryBool treats "1", "true" and "yes" (any case) as true.
func QueryBool(ctx *fasthttp.RequestCtx, name string) bool {

	switch strings.ToLower(string(ctx.QueryArgs().Peek(name))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}

}
