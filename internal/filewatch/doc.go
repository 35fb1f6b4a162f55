// Package filewatch keeps track of which reference files the project system
// depends on and reports when they change on disk.
//
// A Registry hands out logical watches keyed by an identity. Any number of
// identities can watch the same path; they share a single OS-level watch,
// which is created with the first identity and released with the last.
// Identities are themselves refcounted, and releasing one that is not held is
// reported as ErrNotWatched rather than ignored.
//
// Raw change events are debounced per path. A burst of writes to one file
// (a build writing and then overwriting a DLL, say) results in a single call
// to every subscriber once the path has been quiet for Config.Debounce:
//
//	reg := filewatch.NewRegistry(osWatcher, filewatch.DefaultConfig())
//	reg.Subscribe(func(path string) {
//	    log.Printf("reference changed: %s", path)
//	})
//	_ = reg.StartWatching("ref-1", "/out/lib.dll")
//
// FSNotifyWatcher is the OSWatcher used outside of tests. It watches the
// parent directory of every file, since editors and compilers commonly
// replace files rather than write them in place.
package filewatch
