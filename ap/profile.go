package ap

import (
	"context"
	"html"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fedinode/fedinode/render"
	"github.com/fedinode/fedinode/store"
)

// HostMeta renders the XRD document pointing browsers at the WebFinger
// endpoint.
func (s *Service) HostMeta() string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<XRD xmlns="http://docs.oasis-open.org/ns/xri/xrd-1.0">
  <Link rel="lrdd" template="` + s.config.ServerURL + `/.well-known/webfinger?resource={uri}" type="application/jrd+json"/>
</XRD>
`
}

// ProfileHTML renders the human-facing page of a local actor: the profile
// summary and the latest notes, markdown converted to HTML.
func (s *Service) ProfileHTML(ctx context.Context, username string) (string, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.ProfileHTML")
	defer span.End()

	actor, err := s.store.GetActorByUsername(ctx, username)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if actor == nil {
		return "", errors.Wrap(store.ErrNotFound, "actor not found")
	}

	notes, err := s.store.GetNotesByActor(ctx, actor.ID, outboxPageSize, 0)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	displayName := actor.Name
	if displayName == "" {
		displayName = actor.Username
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<title>" + html.EscapeString(displayName) + " (@" + html.EscapeString(actor.Username) + "@" + html.EscapeString(s.config.Host()) + ")</title>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString("<h1>" + html.EscapeString(displayName) + "</h1>\n")
	b.WriteString("<p>@" + html.EscapeString(actor.Username) + "@" + html.EscapeString(s.config.Host()) + "</p>\n")
	if actor.Summary != "" {
		b.WriteString("<div class=\"summary\">" + render.MarkdownToHTML(actor.Summary) + "</div>\n")
	}
	b.WriteString("<hr>\n")
	for _, note := range notes {
		b.WriteString("<article>\n")
		b.WriteString(render.MarkdownToHTML(note.Content))
		b.WriteString("\n<footer><time>" + note.Published.Format(time.RFC3339) + "</time></footer>\n")
		b.WriteString("</article>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// NoteHTML renders the human-facing page of a single note.
func (s *Service) NoteHTML(ctx context.Context, noteID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Ap.Service.NoteHTML")
	defer span.End()

	note, err := s.store.GetNoteByID(ctx, noteID)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	if note == nil {
		return "", errors.Wrap(store.ErrNotFound, "note not found")
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<title>Note</title>\n")
	b.WriteString("</head>\n<body>\n")
	b.WriteString("<article>\n")
	b.WriteString(render.MarkdownToHTML(note.Content))
	b.WriteString("\n<footer><a href=\"" + html.EscapeString(note.AttributedTo) + "\">" +
		html.EscapeString(note.AttributedTo) + "</a> <time>" +
		note.Published.Format(time.RFC3339) + "</time></footer>\n")
	b.WriteString("</article>\n")
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}
