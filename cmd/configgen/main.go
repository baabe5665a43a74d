package main

import (
	"flag"
	"log"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/bridgectl/internal/config"
)

func defaultPath(kind string) string {
	switch kind {
	case "deployment":
		return "cmd/bridgectl/deployment.toml"
	case "runtime":
		return "cmd/bridgectl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func main() {
	kind := flag.String("kind", "deployment", "config kind: deployment|runtime")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "deployment":
			dep, err := config.LoadDeployment(path)
			if err != nil {
				log.Fatal(err)
			}
			log.Printf("Validated deployment with %d endpoints at %s", len(dep.Endpoints), path)
		case "runtime":
			var raw map[string]any
			if _, err := toml.DecodeFile(path, &raw); err != nil {
				log.Fatal(err)
			}
			log.Printf("Validated runtime config at %s", path)
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
