package config

import (
	"errors"

	"github.com/fsnotify/fsnotify"
)

// Watch re-decodes path whenever the file is written and passes the result
// to onChange. An invalid edit is reported as an error and the previous
// configuration stays in force. The watch lasts for the life of the process.
func Watch(path string, onChange func(*Config, error)) error {
	if path == "" {
		return errors.New("no config file to watch")
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v, path))
	})
	v.WatchConfig()
	return nil
}
