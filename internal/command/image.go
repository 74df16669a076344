// Where: internal/command/image.go
// What: image build and image verify commands.
// Why: Rebuild or re-check images for a ref outside a full deploy.
package command

import (
	"fmt"

	"github.com/aaqstack/deployctl/internal/domain/stack"
	"github.com/aaqstack/deployctl/internal/infra/config"
	"github.com/aaqstack/deployctl/internal/infra/image"
	"github.com/aaqstack/deployctl/internal/infra/ui"
)

type (
	ImageCmd struct {
		Build  ImageBuildCmd  `cmd:"" help:"Build and push images tagged :latest and :<ref>"`
		Verify ImageVerifyCmd `cmd:"" help:"Check pushed images carry every configured platform"`
	}

	ImageBuildCmd struct {
		TriggerFlags `embed:""`
		Images       []string `name:"image" sep:"," help:"Image names to build (repeatable); all when omitted"`
		NoPush       bool     `name:"no-push" help:"Build without pushing"`
	}

	ImageVerifyCmd struct {
		TriggerFlags `embed:""`
		Images       []string `name:"image" sep:"," help:"Image names to verify (repeatable); all when omitted"`
	}
)

type taggedImage struct {
	image config.Image
	tags  []string
}

// selectImages returns the named images (all when names is empty) with their tags.
func selectImages(p project, names []string, ref string) ([]taggedImage, error) {
	var selected []config.Image
	if len(names) == 0 {
		selected = p.stack.Images
	} else {
		for _, name := range names {
			img, ok := p.stack.FindImage(name)
			if !ok {
				return nil, fmt.Errorf("unknown image %q", name)
			}
			selected = append(selected, img)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no images declared in the stack config")
	}
	out := make([]taggedImage, 0, len(selected))
	for _, img := range selected {
		tags, err := stack.Tags(p.stack.ImageRef(img), ref)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", img.Name, err)
		}
		out = append(out, taggedImage{image: img, tags: tags})
	}
	return out, nil
}

func runImageBuild(rc *runContext) error {
	cmd := rc.cli.Image.Build
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	trigger, err := rc.detectTrigger(cmd.TriggerFlags, p.root)
	if err != nil {
		return err
	}
	images, err := selectImages(p, cmd.Images, trigger.Ref)
	if err != nil {
		return err
	}
	builder := image.NewBuilder(rc.deps.Runner, p.root, rc.logger)
	for _, img := range images {
		err := builder.Build(rc.ctx, image.BuildRequest{
			Name:       img.image.Name,
			Context:    resolvePath(p.root, img.image.Context),
			Dockerfile: resolvePath(p.root, img.image.Dockerfile),
			Platforms:  p.stack.Registry.Platforms,
			Tags:       img.tags,
			Push:       !cmd.NoPush,
		})
		if err != nil {
			return err
		}
		rc.console.Success(fmt.Sprintf("built %s", img.image.Name))
	}
	return nil
}

func runImageVerify(rc *runContext) error {
	cmd := rc.cli.Image.Verify
	p, err := rc.loadProject()
	if err != nil {
		return err
	}
	trigger, err := rc.detectTrigger(cmd.TriggerFlags, p.root)
	if err != nil {
		return err
	}
	images, err := selectImages(p, cmd.Images, trigger.Ref)
	if err != nil {
		return err
	}
	if rc.deps.NewVerifier == nil {
		return fmt.Errorf("image verification is not available")
	}
	verifier, closer, err := rc.deps.NewVerifier(rc.ctx, p.stack.Registry.Host, rc.logger)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	var refs []string
	for _, img := range images {
		refs = append(refs, img.tags...)
	}
	results, err := verifier.Verify(rc.ctx, refs, p.stack.Registry.Platforms)
	if err != nil {
		return err
	}
	rows := make([]ui.KeyValue, 0, len(results))
	for _, r := range results {
		rows = append(rows, ui.KeyValue{Key: r.Ref, Value: r.Digest})
	}
	rc.console.Block("🔍", "Verified images", rows)
	return nil
}
