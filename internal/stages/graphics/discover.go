package graphics

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/playpublish/internal/playstore"
)

// DeviceClass is a screenshot category and the directory names that
// select it.
type DeviceClass struct {
	Name  string
	Dirs  []string
	Image playstore.ImageType
}

// Classes lists the recognized device classes in upload order.
var Classes = []DeviceClass{
	{Name: "phone", Dirs: []string{"phone"}, Image: playstore.ImagePhoneScreenshots},
	{Name: "tablet7", Dirs: []string{"tablet7", "7-inch", "seven-inch"}, Image: playstore.ImageSevenInchScreenshots},
	{Name: "tablet10", Dirs: []string{"tablet10", "10-inch", "ten-inch"}, Image: playstore.ImageTenInchScreenshots},
	{Name: "tv", Dirs: []string{"tv"}, Image: playstore.ImageTVScreenshots},
	{Name: "wear", Dirs: []string{"wear", "wearable"}, Image: playstore.ImageWearScreenshots},
}

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Set is the screenshots of one device class.
type Set struct {
	Class DeviceClass
	Files []string
}

func classFor(dir string) (DeviceClass, bool) {
	name := strings.ToLower(dir)
	for _, c := range Classes {
		for _, alias := range c.Dirs {
			if alias == name {
				return c, true
			}
		}
	}
	return DeviceClass{}, false
}

// ContentType returns the upload content type for an image path, or ""
// when the extension is not a supported image format.
func ContentType(path string) string {
	return contentTypes[strings.ToLower(filepath.Ext(path))]
}

// Discover maps root onto screenshot sets. Recognized subdirectories each
// contribute their images; when none exists, images directly in root are
// phone screenshots. Unsupported files are skipped.
func Discover(root string) ([]Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("graphics: read screenshots dir: %w", err)
	}
	byClass := map[string]*Set{}
	recognized := false
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		class, ok := classFor(e.Name())
		if !ok {
			continue
		}
		recognized = true
		files, err := images(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		set, ok := byClass[class.Name]
		if !ok {
			set = &Set{Class: class}
			byClass[class.Name] = set
		}
		set.Files = append(set.Files, files...)
	}
	if !recognized {
		files, err := images(root)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, nil
		}
		return []Set{{Class: Classes[0], Files: files}}, nil
	}
	var sets []Set
	for _, c := range Classes {
		if set, ok := byClass[c.Name]; ok && len(set.Files) > 0 {
			sort.Strings(set.Files)
			sets = append(sets, *set)
		}
	}
	return sets, nil
}

func images(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("graphics: read %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || ContentType(e.Name()) == "" {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
