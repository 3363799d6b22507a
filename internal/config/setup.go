package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// ask prints label and returns the trimmed answer, or def when it is blank
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s (default: %s): ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		return "", fmt.Errorf("failed to read %s", strings.ToLower(label))
	}
	answer := strings.TrimSpace(p.scanner.Text())
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (p *prompter) required(label string) (string, error) {
	answer, err := p.ask(label, "")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", fmt.Errorf("%s cannot be empty", strings.ToLower(label))
	}
	return answer, nil
}

// InteractiveSetup asks for the connection settings on in, writes the
// resulting file and returns the configuration.
func InteractiveSetup(in io.Reader, out io.Writer) (*Config, error) {
	p := &prompter{scanner: bufio.NewScanner(in), out: out}

	fmt.Fprintln(out, "🔧 cloudisk setup")
	fmt.Fprintln(out, "=================")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Backends:")
	fmt.Fprintln(out, "  • rest: a cloudisk server, you sign in with email and password")
	fmt.Fprintln(out, "  • s3: an S3 bucket (AWS, MinIO or any S3-compatible service)")
	fmt.Fprintln(out)

	config := Default()

	backend, err := p.ask("Backend (rest/s3)", BackendREST)
	if err != nil {
		return nil, err
	}
	config.Backend = strings.ToLower(backend)

	switch config.Backend {
	case BackendREST:
		if config.Server, err = p.ask("Server URL", DefaultServer); err != nil {
			return nil, err
		}
		retries, err := p.ask("Retries for failed requests", "0")
		if err != nil {
			return nil, err
		}
		if config.Retries, err = strconv.Atoi(retries); err != nil || config.Retries < 0 {
			return nil, fmt.Errorf("invalid retries %q", retries)
		}

	case BackendS3:
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Common configurations:")
		fmt.Fprintln(out, "  • AWS S3: Use your AWS credentials and s3.amazonaws.com")
		fmt.Fprintln(out, "  • MinIO local: Use minioadmin/minioadmin123 and localhost:9000")
		fmt.Fprintln(out)

		if config.S3.AccessKey, err = p.required("Access Key ID"); err != nil {
			return nil, err
		}
		if config.S3.SecretKey, err = p.required("Secret Access Key"); err != nil {
			return nil, err
		}
		if config.S3.HostBase, err = p.ask("S3 Endpoint", DefaultS3Host); err != nil {
			return nil, err
		}
		if config.S3.Region, err = p.ask("Region", DefaultS3Region); err != nil {
			return nil, err
		}
		if config.S3.Bucket, err = p.required("Bucket"); err != nil {
			return nil, err
		}
		// Determine HTTPS usage
		config.S3.UseHTTPS = !strings.Contains(config.S3.HostBase, "localhost") && !strings.Contains(config.S3.HostBase, "127.0.0.1")

	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration summary:\n")
	fmt.Fprintf(out, "  Backend: %s\n", config.Backend)
	if config.Backend == BackendS3 {
		fmt.Fprintf(out, "  Endpoint: %s\n", config.S3.EndpointURL())
		fmt.Fprintf(out, "  Region: %s\n", config.S3.Region)
		fmt.Fprintf(out, "  Bucket: %s\n", config.S3.Bucket)
	} else {
		fmt.Fprintf(out, "  Server: %s\n", config.Server)
	}
	fmt.Fprintln(out)

	// Ask where to save
	fmt.Fprintln(out, "Where would you like to save this configuration?")
	fmt.Fprintf(out, "1. Current directory (%s)\n", FileName)
	fmt.Fprintf(out, "2. Home directory (~/%s)\n", FileName)
	choice, err := p.ask("Choice (1-2)", "2")
	if err != nil {
		return nil, err
	}

	var configPath string
	switch choice {
	case "1":
		configPath = FileName
	case "2":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, FileName)
	default:
		return nil, fmt.Errorf("invalid choice")
	}

	if err := Save(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save configuration: %w", err)
	}
	config.Path = configPath

	fmt.Fprintf(out, "\n✅ Configuration saved to: %s\n", configPath)
	fmt.Fprintln(out)
	return config, nil
}
