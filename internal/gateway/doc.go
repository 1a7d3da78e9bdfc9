// Package gateway serves a hub file system over HTTP. Each request is
// translated to one FileSystem operation on the hub selected by the Host
// header:
//
//	GET|HEAD /<path>        read a file (Range honoured) or list a directory
//	GET      /-/ls/<path>   list a directory (?recursive=1, ?refresh=1)
//	GET      /-/info/<path> describe a single entry
//	PUT      /<path>        upload the request body as one commit
//	DELETE   /<path>        delete a file, or a tree with ?recursive=1
//
// Every operation accepts ?revision= to override the configured revision.
package gateway
