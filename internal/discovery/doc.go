// Package discovery defines the core types and consumer interfaces shared by the
// task lifecycle, the scan engine and the bulk export pipelines.
//
// Components depend on the small interfaces declared here (Store, Source,
// PageCache, AssetCache, Publisher, ...) rather than on concrete backends, so the
// composition root in internal/server decides which storage, provider and
// transport implementations are wired together.
package discovery
