//go:build !windows

package internal

func allowlistCacheDir(string) {}
