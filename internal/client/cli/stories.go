package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dmitrijs2005/storykeeper/internal/client/models"
)

var ErrStoryNotFound = errors.New("story not found in local cache")

// readFile is a test seam for loading photos from disk.
var readFile = os.ReadFile

func (a *App) printStories(list []models.Story) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No stories")
		return
	}
	for _, s := range list {
		line := fmt.Sprintf("%s  %-16s %s", s.ID, s.Name, oneLine(s.Description, 60))
		if s.HasLocation() {
			line += fmt.Sprintf("  @%.4f,%.4f", *s.Lat, *s.Lon)
		}
		fmt.Fprintln(a.out, line)
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func (a *App) List(ctx context.Context) error {
	l := a.stories.List(ctx)
	if l.FromCache {
		fmt.Fprintf(a.out, "Offline: showing %d cached stories (%v)\n", len(l.Stories), l.Cause)
	}
	a.printStories(l.Stories)
	return nil
}

func (a *App) Search(ctx context.Context, query string) error {
	list, err := a.stories.Search(ctx, query)
	a.printStories(list)
	return err
}

// Add collects a description, an optional photo file and an optional
// location, then submits the story. Offline it lands in the outbox.
func (a *App) Add(ctx context.Context) error {
	desc, err := GetMultiline(a.reader, "Enter description", a.out)
	if err != nil {
		return err
	}
	if desc == "" {
		return errors.New("description is required")
	}

	ns := models.NewStory{Description: desc}

	path, err := getSimpleText(a.reader, "Photo file path (empty for none)", a.out)
	if err != nil {
		return err
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return fmt.Errorf("read photo: %w", err)
		}
		ns.Photo = data
		ns.PhotoType = http.DetectContentType(data)
	}

	ns.Lat, ns.Lon, err = GetLocation(a.reader, a.out)
	if err != nil {
		return err
	}

	res, err := a.stories.Submit(ctx, ns)
	if err != nil {
		return err
	}
	if res.Queued {
		fmt.Fprintf(a.out, "Saved offline as #%d, it will be uploaded when back online\n", res.Key)
	} else {
		fmt.Fprintln(a.out, "Story published")
	}
	return nil
}

func (a *App) Delete(ctx context.Context, id string) error {
	if err := a.store.DeleteStory(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted", id)
	return nil
}

func (a *App) findStory(ctx context.Context, id string) (models.Story, error) {
	all, err := a.store.GetAllStories(ctx)
	if err != nil {
		return models.Story{}, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Story{}, ErrStoryNotFound
}

func (a *App) Fav(ctx context.Context, id string) error {
	s, err := a.findStory(ctx, id)
	if err != nil {
		return err
	}
	if err := a.store.SaveFavorite(ctx, s); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved", id)
	return nil
}

func (a *App) Favs(ctx context.Context) error {
	favs, err := a.store.GetFavorites(ctx)
	list := make([]models.Story, 0, len(favs))
	for _, f := range favs {
		list = append(list, f.Story)
	}
	a.printStories(list)
	return err
}

func (a *App) Unfav(ctx context.Context, id string) error {
	if err := a.store.DeleteFavorite(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Removed", id)
	return nil
}

func (a *App) ClearFavs(ctx context.Context) error {
	if err := a.store.ClearFavorites(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Saved stories cleared")
	return nil
}
