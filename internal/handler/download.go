package handler

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/fruworg/stash/internal/sanitize"
	"github.com/fruworg/stash/internal/utils"
)

// archiveEntryCap bounds a bulk download request.
const archiveEntryCap = 1000

// HandleDownload streams one file byte-for-byte under its sanitized name.
func (h *Handler) HandleDownload(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	name, err := sanitize.Name(c.Param("filename"), h.cfg.AllowedExtensions)
	if err != nil {
		return h.writeError(c, err)
	}

	path, err := h.store.FilePath(link.ID, name)
	if err != nil {
		return h.writeError(c, err)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "file not found"})
		}
		return h.writeError(c, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return h.writeError(c, err)
	}

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(path); err == nil {
		contentType = mtype.String()
	}

	c.Response().Header().Set("Content-Type", contentType)
	c.Response().Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	c.Response().Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")

	log.Printf("File served: %s (%s) to %s", name, utils.FormatFileSize(info.Size()), c.RealIP())
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), file)
	return err
}

// downloadRequest is the JSON body of a bulk download.
type downloadRequest struct {
	Files []string `json:"files"`
}

// HandleDownloadMultiple builds one zip archive in memory from the requested
// names. Names that fail sanitization, containment, or existence checks are
// skipped rather than failing the request; the request fails only when
// nothing qualifies.
func (h *Handler) HandleDownloadMultiple(c echo.Context) error {
	link, ok := h.resolveLink(c)
	if !ok {
		return nil
	}

	var req downloadRequest
	if err := c.Bind(&req); err != nil || len(req.Files) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no files requested"})
	}
	if len(req.Files) > archiveEntryCap {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("too many files requested (max %d)", archiveEntryCap),
		})
	}

	var (
		buf       bytes.Buffer
		zw        = zip.NewWriter(&buf)
		added     int
		totalSize int64
		ceiling   = h.cfg.MaxStorageBytes()
	)

	for _, raw := range req.Files {
		name, err := sanitize.Name(raw, h.cfg.AllowedExtensions)
		if err != nil {
			log.Printf("Warning: Skipping archive entry %q: %v", raw, err)
			continue
		}
		path, err := h.store.FilePath(link.ID, name)
		if err != nil {
			log.Printf("Error: Skipping archive entry %q from %s: %v", raw, c.RealIP(), err)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if totalSize+info.Size() > ceiling {
			log.Printf("Warning: Archive for %s hit the size ceiling, truncating", link.ID)
			break
		}

		if err := addToArchive(zw, path, name); err != nil {
			log.Printf("Error: Failed to archive %s: %v", name, err)
			continue
		}
		totalSize += info.Size()
		added++
	}

	if err := zw.Close(); err != nil {
		return h.writeError(c, err)
	}
	if added == 0 {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no downloadable files matched"})
	}

	log.Printf("Archive served: %d files (%s) for link %s", added, utils.FormatFileSize(totalSize), link.ID)
	c.Response().Header().Set("Content-Disposition", "attachment; filename=\""+link.ID+".zip\"")
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

func addToArchive(zw *zip.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}
