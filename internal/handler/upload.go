package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// HandleChunkUpload accepts one multipart chunk of a resumable upload.
// Form fields: chunk (0-based index), chunks (total count), total_size
// (bytes), upload_session_id (opaque token), file part "file".
func (h *Handler) HandleChunkUpload(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	chunkIndex, err := strconv.Atoi(c.FormValue("chunk"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid chunk index"})
	}
	totalChunks, err := strconv.Atoi(c.FormValue("chunks"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid chunk count"})
	}
	totalSize, err := strconv.ParseInt(c.FormValue("total_size"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid total size"})
	}
	sessionToken := c.FormValue("upload_session_id")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no file provided"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable file part"})
	}
	defer src.Close()

	result, err := h.tracker.HandleChunk(link.ID, sessionToken, fileHeader.Filename,
		chunkIndex, totalChunks, totalSize, src, fileHeader.Size)
	if err != nil {
		return h.writeError(c, err)
	}

	resp := map[string]any{
		"success":  true,
		"progress": result.Progress,
	}
	if result.Committed {
		resp["filename"] = result.Name
		resp["size"] = result.Size
	}
	return c.JSON(http.StatusOK, resp)
}
