package modules

import (
	"path"
	"slices"

	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/schema"
	"github.com/slab1/TUI-ConsoleLauncher-sub000/internal/settings"
)

var fileManagerSchema = schema.MustNew(
	schema.BoolField("showHidden", false),
	schema.StringField("sortBy", "name").OneOf("name", "size", "date", "type"),
	schema.BoolField("sortAscending", true),
	schema.BoolField("confirmDelete", true),
	schema.StringField("homePath", "/sdcard").MaxLen(4096),
	schema.StringSetField("bookmarks").Describe("Bookmarked directories"),
	schema.IntField("maxRecent", 10).Range(0, 100),
)

// FileManager holds the file browser settings
type FileManager struct {
	*settings.BaseModule
}

// NewFileManager creates the file manager module
func NewFileManager(env settings.Env) *FileManager {
	return &FileManager{BaseModule: settings.NewBaseModule(settings.BaseConfig{
		ID:       FileManagerID,
		Schema:   fileManagerSchema,
		Validate: validateFileManager,
	}, env)}
}

func validateFileManager(key string, v schema.Value) (schema.Value, error) {
	switch key {
	case "homePath":
		s, _ := v.AsString()
		if !path.IsAbs(s) {
			return schema.Value{}, invalid(key, "%q is not an absolute path", s)
		}
		return schema.String(path.Clean(s)), nil
	case "bookmarks":
		members, _ := v.AsStringSet()
		for i, m := range members {
			if !path.IsAbs(m) {
				return schema.Value{}, invalid(key, "%q is not an absolute path", m)
			}
			members[i] = path.Clean(m)
		}
		return schema.StringSet(members...), nil
	}
	return v, nil
}

func (f *FileManager) ShowHidden() bool { return f.GetBool("showHidden", false) }

func (f *FileManager) SortBy() string { return f.GetString("sortBy", "name") }

func (f *FileManager) SortAscending() bool { return f.GetBool("sortAscending", true) }

func (f *FileManager) HomePath() string { return f.GetString("homePath", "/sdcard") }

func (f *FileManager) SetHomePath(p string) bool { return f.SetString("homePath", p) }

func (f *FileManager) Bookmarks() []string { return f.GetStringSet("bookmarks") }

// AddBookmark adds a directory to the bookmark set
func (f *FileManager) AddBookmark(dir string) bool {
	return f.SetStringSet("bookmarks", append(f.Bookmarks(), dir)...)
}

// RemoveBookmark drops a directory; removing a missing bookmark is not a write
func (f *FileManager) RemoveBookmark(dir string) bool {
	current := f.Bookmarks()
	i := slices.Index(current, path.Clean(dir))
	if i < 0 {
		return false
	}
	return f.SetStringSet("bookmarks", slices.Delete(current, i, i+1)...)
}

func (f *FileManager) MaxRecent() int { return f.GetInt("maxRecent", 10) }
