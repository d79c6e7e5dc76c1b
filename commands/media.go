package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

const (
	mediaTimeLayout     = "20060102150405"
	thumbnailTimeLayout = "20060102T150405"
)

// RegisterMedia installs the media, template, font and thumbnail listings.
func RegisterMedia(r *amcp.Registry) {
	r.Register(amcp.ScopeBare, "CLS", amcp.Command{Handler: cls})
	r.Register(amcp.ScopeBare, "CINF", amcp.Command{MinParams: 1, Handler: cinf})
	r.Register(amcp.ScopeBare, "TLS", amcp.Command{Handler: tls})
	r.Register(amcp.ScopeBare, "FLS", amcp.Command{Handler: fls})
	r.Register(amcp.ScopeBare, "THUMBNAIL LIST", amcp.Command{Handler: thumbnailList})
	r.Register(amcp.ScopeBare, "THUMBNAIL RETRIEVE", amcp.Command{MinParams: 1, Handler: thumbnailRetrieve})
	r.Register(amcp.ScopeBare, "THUMBNAIL GENERATE", amcp.Command{MinParams: 1, Handler: thumbnailGenerate})
	r.Register(amcp.ScopeBare, "THUMBNAIL GENERATE_ALL", amcp.Command{Handler: thumbnailGenerateAll})
}

func cls(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	media, err := lib.Media(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(media))
	for i, m := range media {
		lines[i] = strings.ToUpper(formatMedia(m))
	}
	return amcp.List("CLS", lines), nil
}

func cinf(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	m, err := lib.MediaInfo(ctx, inv.Parameters[0])
	if err != nil {
		return nil, err
	}
	return amcp.List("CINF", []string{formatMedia(m)}), nil
}

func tls(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	templates, err := lib.Templates(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(templates))
	for i, t := range templates {
		dir, file := path.Split(t.Name)
		lines[i] = fmt.Sprintf("%q %d %s %s", dir+strings.ToUpper(file), t.Size, t.Modified.Format(mediaTimeLayout),
			t.Type)
	}
	return amcp.List("TLS", lines), nil
}

func fls(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	fonts, err := lib.Fonts(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(fonts))
	for i, f := range fonts {
		name := strings.TrimSuffix(path.Base(f), path.Ext(f))
		lines[i] = fmt.Sprintf("%q %q", name, f)
	}
	return amcp.List("FLS", lines), nil
}

func thumbnailList(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	thumbs, err := lib.Thumbnails(ctx)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(thumbs))
	for i, t := range thumbs {
		lines[i] = strings.ToUpper(fmt.Sprintf("%q %s %d", t.Name, t.Modified.Format(thumbnailTimeLayout), t.Size))
	}
	return amcp.List("THUMBNAIL LIST", lines), nil
}

func thumbnailRetrieve(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}

	data, err := lib.Thumbnail(ctx, inv.Parameters[0])
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: thumbnail %q is empty", amcp.ErrMediaNotFound, inv.Parameters[0])
	}
	return amcp.OK(201, "THUMBNAIL RETRIEVE", base64.StdEncoding.EncodeToString(data)), nil
}

func thumbnailGenerate(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}
	if err := lib.GenerateThumbnail(ctx, inv.Parameters[0]); err != nil {
		return nil, err
	}
	return amcp.OK(202, "THUMBNAIL GENERATE"), nil
}

func thumbnailGenerateAll(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	lib, err := mediaLibraryOf(cc, inv)
	if err != nil {
		return nil, err
	}
	if err := lib.GenerateAllThumbnails(ctx); err != nil {
		return nil, err
	}
	return amcp.OK(202, "THUMBNAIL GENERATE_ALL"), nil
}

// formatMedia renders `"<name>" <type> <size> <modified> <frames> <frame rate>`.
func formatMedia(m amcp.MediaInfo) string {
	return fmt.Sprintf("%q %s %d %s %d %s", m.Name, m.Type, m.Size, m.Modified.Format(mediaTimeLayout), m.Frames,
		m.FrameRate)
}

func mediaLibraryOf(cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.MediaLibrary, error) {
	if cc.Media == nil {
		return nil, amcp.NewError(amcp.UnknownError, inv.Name, "no media library configured")
	}
	return cc.Media, nil
}
