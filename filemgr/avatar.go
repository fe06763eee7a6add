package filemgr

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"festa/utils"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const avatarDir = "static/avatars"
const avatarWidth = 200

// SaveAvatar stores an uploaded photo and a resized thumbnail next to it,
// returning the public URL of the thumbnail.
func SaveAvatar(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := utils.EnsureDir(avatarDir); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		ext = ".jpg"
	}
	name := uuid.NewString()
	origPath := filepath.Join(avatarDir, name+ext)

	out, err := os.Create(origPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		return "", err
	}
	out.Close()

	img, err := imaging.Open(origPath)
	if err != nil {
		return "", fmt.Errorf("decode avatar: %w", err)
	}
	thumb := imaging.Resize(img, avatarWidth, 0, imaging.Lanczos) // maintain aspect ratio
	thumbPath := filepath.Join(avatarDir, name+"_thumb.jpg")
	if err := imaging.Save(thumb, thumbPath); err != nil {
		return "", err
	}

	return "/" + filepath.ToSlash(thumbPath), nil
}
