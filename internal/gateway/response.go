package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jacl-coder/PixelStream-Server/internal/apperr"
)

// Response 统一的响应格式
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// sendSuccessResponse 发送成功响应
func sendSuccessResponse(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

// sendErrorResponse 按错误类型发送错误响应，未分类的错误不向客户端暴露细节
func (g *Gateway) sendErrorResponse(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(err)

	message := "服务器内部错误"
	var e *apperr.Error
	if errors.As(err, &e) && kind != apperr.Internal {
		message = e.Message
	} else if kind == apperr.Transient {
		message = "服务暂不可用，请稍后重试"
	}

	if status >= http.StatusInternalServerError {
		g.log.Error("请求处理失败", "kind", kind, "error", err)
	}

	writeJSON(w, status, Response{Success: false, Message: message, Code: string(kind)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody 解析请求体，空请求体视为空对象
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.Invalid, "无效的请求格式", err)
	}
	return nil
}
