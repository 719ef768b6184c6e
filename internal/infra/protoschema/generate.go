package protoschema

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/moby/sys/atomicwriter"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"

	"text-assistant/internal/domain"
)

const artifactFileMode = 0o644

// BuiltinGenerator writes both schema artifacts from the schema compiled into
// the binary. It needs no external tools.
type BuiltinGenerator struct {
	source     string
	descriptor string
	logger     *slog.Logger
}

func NewBuiltinGenerator(paths domain.Artifacts, logger *slog.Logger) *BuiltinGenerator {
	return &BuiltinGenerator{
		source:     paths.SchemaSource,
		descriptor: paths.SchemaDescriptor,
		logger:     logger,
	}
}

func (g *BuiltinGenerator) Generate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := DescriptorSet()
	if err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "", err)
	}

	if err := atomicwriter.WriteFile(g.source, protoSource, artifactFileMode); err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "", domain.IOError(g.source, err))
	}
	if err := atomicwriter.WriteFile(g.descriptor, data, artifactFileMode); err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "", domain.IOError(g.descriptor, err))
	}

	g.logger.Info("protocol schema written",
		"source", g.source,
		"descriptor", g.descriptor,
		"bytes", len(data),
	)
	return nil
}

// DescriptorSet serializes the built-in schema as a FileDescriptorSet. The
// output is byte-for-byte stable across runs.
func DescriptorSet() ([]byte, error) {
	fdp := builtinDescriptor()
	if _, err := protodesc.NewFile(fdp, nil); err != nil {
		return nil, fmt.Errorf("validating descriptor: %w", err)
	}

	set := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{fdp}}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor set: %w", err)
	}
	return data, nil
}

// ProtocGenerator compiles the schema source with an installed protoc. An
// existing source file is compiled as is, which allows swapping in the
// upstream API definitions; otherwise the built-in source is written first.
type ProtocGenerator struct {
	source     string
	descriptor string
	protoc     string
	logger     *slog.Logger
}

func NewProtocGenerator(paths domain.Artifacts, protocPath string, logger *slog.Logger) *ProtocGenerator {
	if protocPath == "" {
		protocPath = "protoc"
	}
	return &ProtocGenerator{
		source:     paths.SchemaSource,
		descriptor: paths.SchemaDescriptor,
		protoc:     protocPath,
		logger:     logger,
	}
}

func (g *ProtocGenerator) Generate(ctx context.Context) error {
	if _, err := os.Stat(g.source); errors.Is(err, fs.ErrNotExist) {
		if err := atomicwriter.WriteFile(g.source, protoSource, artifactFileMode); err != nil {
			return domain.NewError(domain.KindSchemaGenerationFailed, "", domain.IOError(g.source, err))
		}
		g.logger.Info("wrote built-in schema source", "path", g.source)
	} else if err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "", domain.IOError(g.source, err))
	}

	tmp := g.descriptor + ".tmp"
	defer os.Remove(tmp)

	cmd := exec.CommandContext(ctx, g.protoc,
		"--proto_path="+filepath.Dir(g.source),
		"--include_imports",
		"--descriptor_set_out="+tmp,
		filepath.Base(g.source),
	)
	g.logger.Info("running protoc", "protoc", g.protoc, "source", g.source)

	if out, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = "protoc failed"
		}
		return domain.NewError(domain.KindSchemaGenerationFailed, detail, err)
	}

	// Reject a descriptor the session could not use before it counts as ready.
	if _, err := Load(tmp); err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "compiled schema is unusable", err)
	}

	if err := os.Rename(tmp, g.descriptor); err != nil {
		return domain.NewError(domain.KindSchemaGenerationFailed, "", domain.IOError(g.descriptor, err))
	}

	g.logger.Info("protocol schema compiled", "descriptor", g.descriptor)
	return nil
}
