// Package medialib implements amcp.MediaLibrary on top of the media, template, font and thumbnail
// folders of the server configuration.
package medialib

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// ThumbnailGenerator renders the thumbnail of one media file into a PNG file.
type ThumbnailGenerator interface {
	Generate(ctx context.Context, mediaPath, thumbnailPath string) error
}

// Dir scans folders on every call; nothing is cached. Media names are relative to their folder,
// "/" separated and without extension, and are looked up case-insensitively.
type Dir struct {
	paths     amcp.Paths
	generator ThumbnailGenerator
	logger    *slog.Logger
}

// Option represents the options for Dir.
type Option func(*Dir)

var mediaTypes = map[string]string{
	".mov": "MOVIE", ".mp4": "MOVIE", ".mxf": "MOVIE", ".avi": "MOVIE", ".mkv": "MOVIE",
	".webm": "MOVIE", ".mpg": "MOVIE", ".mpeg": "MOVIE", ".ts": "MOVIE", ".m2ts": "MOVIE",
	".flv": "MOVIE", ".wmv": "MOVIE", ".dv": "MOVIE",
	".wav": "AUDIO", ".mp3": "AUDIO", ".aac": "AUDIO", ".flac": "AUDIO", ".ogg": "AUDIO", ".m4a": "AUDIO",
	".png": "STILL", ".jpg": "STILL", ".jpeg": "STILL", ".tga": "STILL", ".bmp": "STILL",
	".tif": "STILL", ".tiff": "STILL", ".gif": "STILL",
}

var templateTypes = map[string]string{
	".html":  "html",
	".htm":   "html",
	".ft":    "flash",
	".ct":    "flash",
	".scene": "scene",
}

var fontExts = []string{".ttf", ".otf"}

const thumbnailExt = ".png"

// New creates a Dir over the configured folders.
func New(paths amcp.Paths, options ...Option) *Dir {
	d := &Dir{
		paths:  paths,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// WithThumbnailGenerator enables THUMBNAIL GENERATE and GENERATE_ALL.
func WithThumbnailGenerator(g ThumbnailGenerator) Option {
	return func(d *Dir) {
		d.generator = g
	}
}

// WithLogger sets the logger for the library.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dir) {
		d.logger = logger.With(
			slog.String("package", "go-amcp"),
			slog.String("component", "medialib"),
		)
	}
}

// Media implements amcp.MediaLibrary.
func (d *Dir) Media(_ context.Context) ([]amcp.MediaInfo, error) {
	var media []amcp.MediaInfo
	err := walk(d.paths.Media, func(name, ext string, info fs.FileInfo) {
		kind, ok := mediaTypes[strings.ToLower(ext)]
		if !ok {
			return
		}
		media = append(media, mediaInfo(name, kind, info))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}
	return media, nil
}

// MediaInfo implements amcp.MediaLibrary.
func (d *Dir) MediaInfo(ctx context.Context, name string) (amcp.MediaInfo, error) {
	media, err := d.Media(ctx)
	if err != nil {
		return amcp.MediaInfo{}, err
	}
	idx := slices.IndexFunc(media, func(m amcp.MediaInfo) bool { return strings.EqualFold(m.Name, name) })
	if idx < 0 {
		return amcp.MediaInfo{}, fmt.Errorf("%w: %s", amcp.ErrMediaNotFound, name)
	}
	return media[idx], nil
}

// Exists reports whether a media file called name exists. It suits executor.WithMediaCheck.
func (d *Dir) Exists(name string) bool {
	_, err := d.MediaInfo(context.Background(), name)
	return err == nil
}

// Templates implements amcp.MediaLibrary.
func (d *Dir) Templates(_ context.Context) ([]amcp.FileInfo, error) {
	var templates []amcp.FileInfo
	err := walk(d.paths.Template, func(name, ext string, info fs.FileInfo) {
		kind, ok := templateTypes[strings.ToLower(ext)]
		if !ok {
			return
		}
		templates = append(templates, amcp.FileInfo{
			Name:     name,
			Size:     info.Size(),
			Modified: info.ModTime(),
			Type:     kind,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Fonts implements amcp.MediaLibrary. It returns font file paths relative to the font folder.
func (d *Dir) Fonts(_ context.Context) ([]string, error) {
	var fonts []string
	err := walk(d.paths.Font, func(name, ext string, _ fs.FileInfo) {
		if slices.Contains(fontExts, strings.ToLower(ext)) {
			fonts = append(fonts, name+ext)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list fonts: %w", err)
	}
	return fonts, nil
}

// Thumbnails implements amcp.MediaLibrary.
func (d *Dir) Thumbnails(_ context.Context) ([]amcp.FileInfo, error) {
	var thumbs []amcp.FileInfo
	err := walk(d.paths.Thumbnail, func(name, ext string, info fs.FileInfo) {
		if !strings.EqualFold(ext, thumbnailExt) {
			return
		}
		thumbs = append(thumbs, amcp.FileInfo{Name: name, Size: info.Size(), Modified: info.ModTime()})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	return thumbs, nil
}

// Thumbnail implements amcp.MediaLibrary.
func (d *Dir) Thumbnail(ctx context.Context, name string) ([]byte, error) {
	thumbs, err := d.Thumbnails(ctx)
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(thumbs, func(t amcp.FileInfo) bool { return strings.EqualFold(t.Name, name) })
	if idx < 0 {
		return nil, fmt.Errorf("%w: thumbnail %s", amcp.ErrMediaNotFound, name)
	}

	p := filepath.Join(d.paths.Thumbnail, filepath.FromSlash(thumbs[idx].Name)+thumbnailExt)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read thumbnail %q: %w", name, err)
	}
	return data, nil
}

// GenerateThumbnail implements amcp.MediaLibrary. Without a generator it returns ErrNotSupported.
func (d *Dir) GenerateThumbnail(ctx context.Context, name string) error {
	if d.generator == nil {
		return fmt.Errorf("%w: thumbnail generation is turned off", amcp.ErrNotSupported)
	}

	mediaPath, err := d.mediaPath(name)
	if err != nil {
		return err
	}
	return d.generate(ctx, name, mediaPath)
}

// GenerateAllThumbnails implements amcp.MediaLibrary. It keeps going after a failure and returns
// the joined errors.
func (d *Dir) GenerateAllThumbnails(ctx context.Context) error {
	if d.generator == nil {
		return fmt.Errorf("%w: thumbnail generation is turned off", amcp.ErrNotSupported)
	}

	paths := make(map[string]string)
	err := walk(d.paths.Media, func(name, ext string, _ fs.FileInfo) {
		if _, ok := mediaTypes[strings.ToLower(ext)]; ok {
			paths[name] = filepath.Join(d.paths.Media, filepath.FromSlash(name)+ext)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to list media: %w", err)
	}

	var errs []error
	for name, mediaPath := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.generate(ctx, name, mediaPath); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dir) generate(ctx context.Context, name, mediaPath string) error {
	thumbPath := filepath.Join(d.paths.Thumbnail, filepath.FromSlash(name)+thumbnailExt)
	if err := os.MkdirAll(filepath.Dir(thumbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail folder: %w", err)
	}
	if err := d.generator.Generate(ctx, mediaPath, thumbPath); err != nil {
		return fmt.Errorf("failed to generate thumbnail for %q: %w", name, err)
	}
	d.logger.Debug("generated thumbnail", slog.String("media", name), slog.String("path", thumbPath))
	return nil
}

func (d *Dir) mediaPath(name string) (string, error) {
	var found string
	err := walk(d.paths.Media, func(n, ext string, _ fs.FileInfo) {
		if found != "" || !strings.EqualFold(n, name) {
			return
		}
		if _, ok := mediaTypes[strings.ToLower(ext)]; ok {
			found = filepath.Join(d.paths.Media, filepath.FromSlash(n)+ext)
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to list media: %w", err)
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", amcp.ErrMediaNotFound, name)
	}
	return found, nil
}

func mediaInfo(name, kind string, info fs.FileInfo) amcp.MediaInfo {
	m := amcp.MediaInfo{
		Name:      name,
		Type:      kind,
		Size:      info.Size(),
		Modified:  info.ModTime(),
		FrameRate: "0/1",
	}
	if kind == "STILL" {
		m.Frames = 1
	}
	return m
}

// walk calls fn for every regular file below root with its relative, "/" separated name without
// extension. A missing root yields nothing.
func walk(root string, fn func(name, ext string, info fs.FileInfo)) error {
	err := filepath.WalkDir(root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ext := path.Ext(rel)
		fn(strings.TrimSuffix(rel, ext), ext, info)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
