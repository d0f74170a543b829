package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fenwick-labs/chatcluster/internal/model"
)

// messageWire is the JSON shape of a chat message sent to clients.
type messageWire struct {
	From      string `json:"from"`
	Content   string `json:"content"`
	MessageID int64  `json:"message_id"`
	TimeStamp string `json:"time_stamp"`
}

// writeStatus writes {error_code, error_message} plus whatever extra
// fields are merged in via gin.H.
func writeStatus(c *gin.Context, code model.StatusCode, extra gin.H) {
	body := gin.H{"error_code": code, "error_message": ""}
	if code != model.StatusSuccess {
		body["error_message"] = code.Message()
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}
