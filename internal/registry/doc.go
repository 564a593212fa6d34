// Package registry provides Application Registries backed by CUE manifests.
//
// A manifest directory holds one application:
//
//	app: {
//	    name: "blog"
//	    module: posts: {
//	        runtime:     "cue"
//	        entry_types: ["post"]
//	        code_file:   "validators/posts.cue"
//	    }
//	}
//
// Module code is given inline (code) or as a path relative to the manifest
// directory (code_file). Keep code files outside the manifest directory
// itself (a subdirectory works): every .cue file in the directory is part of
// the manifest instance.
//
// CompileManifest turns the CUE value into an ir.AppManifest, Static serves
// it as a registry, and Holder reloads it when the directory changes.
package registry
