package artifacts

import (
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"www.velocidex.com/golang/go-artifacts/output"
	"www.velocidex.com/golang/go-artifacts/registry"
)

type RegistryOptions struct {
	Fs afero.Fs

	// Hive files. Each is walked on its own.
	Paths []string

	// Only keys below this path.
	StartPath string

	// Case insensitive regex on the key path.
	PathFilter string
}

func GetDefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		Paths: []string{
			`C:\Windows\System32\config\SYSTEM`,
			`C:\Windows\System32\config\SOFTWARE`,
		},
	}
}

func openHive(fs afero.Fs, path string) (*registry.Hive, error) {
	source, err := openSource(fs, path)
	if err != nil {
		return nil, err
	}
	defer source.Close()

	hive, err := registry.NewHiveFromReader(source, source.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "Hive %v", path)
	}
	return hive, nil
}

func (self RegistryOptions) walkOptions(path_filter string) (
	registry.WalkOptions, error) {
	result := registry.GetDefaultWalkOptions()
	result.StartPath = self.StartPath

	if path_filter == "" {
		path_filter = self.PathFilter
	}
	filter, err := registry.CompilePathFilter(path_filter)
	if err != nil {
		return result, err
	}
	result.PathFilter = filter
	return result, nil
}

// ParseRegistry dumps every key of every hive. A hive that can not be
// opened fails the artifact only when it is the only one.
func ParseRegistry(options RegistryOptions, sink *output.Sink, filter bool) error {
	walk_options, err := options.walkOptions("")
	if err != nil {
		return err
	}

	fs := defaultFs(options.Fs)
	batcher := sink.NewBatcher(REGISTRY, filter)

	var last_err error
	opened := 0
	for _, path := range options.Paths {
		hive, err := openHive(fs, path)
		if err != nil {
			logSkipped(REGISTRY, path, err)
			last_err = err
			continue
		}
		opened++

		var add_err error
		err = registry.WalkHive(hive, walk_options, func(entry *registry.RegistryEntry) {
			if add_err == nil {
				add_err = batcher.Add(entry.ToDict())
			}
		})
		if add_err != nil {
			return closeBatcher(batcher, add_err)
		}
		if err != nil {
			logSkipped(REGISTRY, path, err)
		}
	}

	if opened == 0 && last_err != nil {
		return closeBatcher(batcher, last_err)
	}
	return closeBatcher(batcher, nil)
}

// Only the account keys of the SAM hive are needed.
const sam_users_filter = `\\SAM\\Domains\\Account\\Users\\`

type UsersOptions struct {
	Fs   afero.Fs
	Path string
}

func GetDefaultUsersOptions() UsersOptions {
	return UsersOptions{Path: `C:\Windows\System32\config\SAM`}
}

func ParseUsers(options UsersOptions, sink *output.Sink, filter bool) error {
	entries, err := hiveEntries(options.Fs, options.Path, sam_users_filter)
	if err != nil {
		return err
	}

	batcher := sink.NewBatcher(USERS, filter)
	users := registry.ParseUsers(entries)
	for _, user := range users {
		err = batcher.Add(user.ToDict())
		if err != nil {
			break
		}
	}

	log.WithField("users", len(users)).Info("[artifacts] Users done")
	return closeBatcher(batcher, err)
}

type AmcacheOptions struct {
	Fs   afero.Fs
	Path string
}

func GetDefaultAmcacheOptions() AmcacheOptions {
	return AmcacheOptions{Path: `C:\Windows\appcompat\Programs\Amcache.hve`}
}

func ParseAmcache(options AmcacheOptions, sink *output.Sink, filter bool) error {
	entries, err := hiveEntries(options.Fs, options.Path,
		registry.AMCACHE_PATH_FILTER)
	if err != nil {
		return err
	}

	batcher := sink.NewBatcher(AMCACHE, filter)
	for _, entry := range registry.ParseAmcache(entries) {
		err = batcher.Add(entry.ToDict())
		if err != nil {
			break
		}
	}
	return closeBatcher(batcher, err)
}

func hiveEntries(fs afero.Fs, path, path_filter string) (
	[]*registry.RegistryEntry, error) {
	hive, err := openHive(defaultFs(fs), path)
	if err != nil {
		return nil, err
	}

	walk_options, err := RegistryOptions{}.walkOptions(path_filter)
	if err != nil {
		return nil, err
	}

	entries, err := registry.GetRegistryKeys(hive, walk_options)
	if err != nil {
		// Whatever was walked before the error is still useful.
		log.WithError(err).WithField("path", path).
			Warn("[artifacts] Hive walk stopped early")
	}
	return entries, nil
}
