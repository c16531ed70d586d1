package configutils

import (
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// ImportKey lists configuration files to merge underneath the file naming
// them. Relative imports resolve against the importing file's directory.
var ImportKey = "imports"

// ResolveAndMergeFile reads filePath and every file it imports, transitively,
// from the OS filesystem and merges them into v. See ResolveAndMergeFileFs.
func ResolveAndMergeFile(v *viper.Viper, filePath string) error {
	return ResolveAndMergeFileFs(afero.NewOsFs(), v, filePath)
}

// ResolveAndMergeFileFs merges filePath and its imports from fs into v.
// Imported files are merged first, depth first, so the importing file wins
// on conflicting keys. A file imported more than once is merged once, which
// also stops import cycles.
func ResolveAndMergeFileFs(fs afero.Fs, v *viper.Viper, filePath string) error {
	if _, err := configType(filePath); err != nil {
		return err
	}
	if _, err := fs.Stat(filePath); err != nil {
		return err
	}

	var order []string
	visited := map[string]struct{}{filePath: {}}
	if err := collectImports(fs, filePath, visited, &order); err != nil {
		return fmt.Errorf("could not resolve configuration imports: %w", err)
	}
	order = append(order, filePath)

	v.SetFs(fs)
	v.SetConfigFile(filePath)
	for _, path := range order {
		if err := mergeConfigFile(fs, v, path); err != nil {
			return fmt.Errorf("merging config %s: %w", path, err)
		}
	}
	return nil
}

// collectImports appends the imports of filePath to order in post-order.
func collectImports(fs afero.Fs, filePath string, visited map[string]struct{}, order *[]string) error {
	imports, err := readImports(fs, filePath)
	if err != nil {
		return err
	}

	for _, imp := range imports {
		if imp == "" {
			continue
		}
		path := imp
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(filePath), imp)
		}
		path = filepath.Clean(path)

		if _, seen := visited[path]; seen {
			continue
		}
		visited[path] = struct{}{}

		if err := collectImports(fs, path, visited, order); err != nil {
			return err
		}
		*order = append(*order, path)
	}
	return nil
}

func readImports(fs afero.Fs, filePath string) ([]string, error) {
	typ, err := configType(filePath)
	if err != nil {
		return nil, err
	}
	f, err := fs.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	child := viper.New()
	child.SetConfigType(typ)
	if err := child.ReadConfig(f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return child.GetStringSlice(ImportKey), nil
}

func mergeConfigFile(fs afero.Fs, v *viper.Viper, filePath string) error {
	typ, err := configType(filePath)
	if err != nil {
		return err
	}
	f, err := fs.Open(filePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	v.SetConfigType(typ)
	return v.MergeConfig(f)
}

// configType returns the viper config type for the extension of filePath.
func configType(filePath string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	if ext == "" {
		return "", fmt.Errorf("configuration file %s has no extension", filePath)
	}
	if !slices.Contains(viper.SupportedExts, ext) {
		return "", fmt.Errorf("unsupported configuration file extension: .%s", ext)
	}
	return ext, nil
}

// BindEnvs binds an environment variable for every mapstructure key of the
// struct target points to, nested under key. Viper only consults the
// environment during Unmarshal for keys it knows about, so values that are
// set only in the environment need this.
func BindEnvs(v *viper.Viper, key string, target any) error {
	val := reflect.ValueOf(target)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind envs for %q: target must be a pointer to a struct, got %T", key, target)
	}
	return bindStruct(v, key, val.Elem().Type())
}

func bindStruct(v *viper.Viper, prefix string, typ reflect.Type) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name, opts, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" || !field.IsExported() {
			continue
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		if opts == "squash" {
			if ft.Kind() == reflect.Struct {
				if err := bindStruct(v, prefix, ft); err != nil {
					return err
				}
			}
			continue
		}
		if name == "" {
			// mapstructure matches untagged fields by name, case-insensitively
			name = strings.ToLower(field.Name)
		}

		fullKey := name
		if prefix != "" {
			fullKey = prefix + "." + name
		}
		if ft.Kind() == reflect.Struct && ft.PkgPath() != "time" {
			if err := bindStruct(v, fullKey, ft); err != nil {
				return err
			}
			continue
		}
		if err := v.BindEnv(fullKey); err != nil {
			return fmt.Errorf("failed to bind environment variable for %s: %w", fullKey, err)
		}
	}
	return nil
}
