// devstack.go
//
// A library catalog and lending service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of librarydb.
// librarydb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// librarydb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with librarydb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package devstack runs the backing services of librarydb in containers,
// for integration tests and for local development with cmd/devstack.
package devstack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/localnerve/librarydb/internal/config"
	"github.com/localnerve/librarydb/internal/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// Logf receives progress messages. testing.T.Logf and log.Printf both fit.
type Logf func(format string, args ...any)

// Options selects the containers to run. Empty images are skipped.
type Options struct {
	DBType      string
	DBImage     string
	Database    string
	User        string
	Password    string
	BrokerImage string
	AuthzImage  string
	AuthzClient string
	AuthzSecret string
}

// OptionsFromEnv reads Options from the environment
func OptionsFromEnv() Options {
	return Options{
		DBType:      getEnv("DB_TYPE", "mariadb"),
		DBImage:     os.Getenv("DB_IMAGE"),
		Database:    getEnv("DB_DATABASE", "library"),
		User:        getEnv("DB_APP_USER", "library"),
		Password:    getEnv("DB_APP_PASSWORD", "library-secret"),
		BrokerImage: os.Getenv("RABBITMQ_IMAGE"),
		AuthzImage:  os.Getenv("AUTHZ_IMAGE"),
		AuthzClient: getEnv("AUTHZ_CLIENT_ID", "librarydb"),
		AuthzSecret: getEnv("AUTHZ_ADMIN_SECRET", "librarydb-admin"),
	}
}

// Stack is a set of running containers on a private network
type Stack struct {
	Network    *testcontainers.DockerNetwork
	DB         testcontainers.Container
	Broker     testcontainers.Container
	Authorizer testcontainers.Container

	// Config points the service at the running containers
	Config *config.Config
}

// Start creates the network and every container named by opts
func Start(ctx context.Context, opts Options, logf Logf) (*Stack, error) {
	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	s := &Stack{Network: nw}

	if opts.DBImage != "" {
		s.DB, s.Config, err = StartDB(ctx, opts, nw.Name, logf)
		if err != nil {
			return s, errors.Join(err, s.Terminate(ctx))
		}
	} else {
		s.Config = &config.Config{DBType: "sqlite", DBAppDatabase: "library.db"}
	}

	if opts.BrokerImage != "" {
		var url string
		s.Broker, url, err = StartBroker(ctx, opts.BrokerImage, nw.Name, logf)
		if err != nil {
			return s, errors.Join(err, s.Terminate(ctx))
		}
		s.Config.RabbitMQURL = url
	}

	if opts.AuthzImage != "" {
		var url string
		s.Authorizer, url, err = startAuthorizer(ctx, opts, nw.Name, logf)
		if err != nil {
			return s, errors.Join(err, s.Terminate(ctx))
		}
		s.Config.AuthzURL = url
		s.Config.AuthzClientID = opts.AuthzClient
	}

	return s, nil
}

// Terminate stops every started container and removes the network
func (s *Stack) Terminate(ctx context.Context) error {
	var errs []error
	for _, c := range []testcontainers.Container{s.Authorizer, s.Broker, s.DB} {
		errs = append(errs, testcontainers.TerminateContainer(c, testcontainers.StopContext(ctx)))
	}
	if s.Network != nil {
		errs = append(errs, s.Network.Remove(ctx))
	}
	return errors.Join(errs...)
}

// Env renders the stack configuration as the environment the server reads
func (s *Stack) Env() map[string]string {
	env := map[string]string{
		"DB_TYPE":     s.Config.DBType,
		"DB_DATABASE": s.Config.DBAppDatabase,
	}
	if s.DB != nil {
		env["DB_HOST"] = s.Config.DBHost
		env["DB_PORT"] = s.Config.DBPort
		env["DB_APP_USER"] = s.Config.DBAppUser
		env["DB_APP_PASSWORD"] = s.Config.DBAppPassword
	}
	if s.Config.RabbitMQURL != "" {
		env["RABBITMQ_URL"] = s.Config.RabbitMQURL
	}
	if s.Config.AuthzURL != "" {
		env["AUTHZ_URL"] = s.Config.AuthzURL
		env["AUTHZ_CLIENT_ID"] = s.Config.AuthzClientID
	}
	return env
}

// StartDB runs a MariaDB, MySQL or Postgres container with its data on tmpfs,
// and waits until the application user can connect.
func StartDB(ctx context.Context, opts Options, networkName string, logf Logf) (testcontainers.Container, *config.Config, error) {
	var port, dataDir string
	var env map[string]string
	switch opts.DBType {
	case "postgres", "postgresql":
		port, dataDir = "5432", "/var/lib/postgresql/data"
		env = map[string]string{
			"POSTGRES_DB":       opts.Database,
			"POSTGRES_USER":     opts.User,
			"POSTGRES_PASSWORD": opts.Password,
		}
	case "mysql", "mariadb":
		port, dataDir = "3306", "/var/lib/mysql"
		env = map[string]string{
			"MYSQL_ROOT_PASSWORD": opts.Password,
			"MYSQL_DATABASE":      opts.Database,
			"MYSQL_USER":          opts.User,
			"MYSQL_PASSWORD":      opts.Password,
		}
	default:
		return nil, nil, fmt.Errorf("no container for database type %s", opts.DBType)
	}

	tcpPort, err := nat.NewPort("tcp", port)
	if err != nil {
		return nil, nil, err
	}
	reportPull(ctx, opts.DBImage, logf)

	req := testcontainers.ContainerRequest{
		Image:        opts.DBImage,
		ExposedPorts: []string{string(tcpPort)},
		Env:          env,
		HostConfigModifier: func(hostConfig *container.HostConfig) {
			hostConfig.Tmpfs = map[string]string{dataDir: "rw"}
		},
		WaitingFor: wait.ForListeningPort(tcpPort).WithStartupTimeout(60 * time.Second),
	}
	if networkName != "" {
		req.Networks = []string{networkName}
		req.NetworkAliases = map[string][]string{networkName: {"db"}}
	}
	db, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return db, nil, fmt.Errorf("failed to start %s: %w", opts.DBImage, err)
	}

	host, err := db.Host(ctx)
	if err != nil {
		return db, nil, err
	}
	mapped, err := db.MappedPort(ctx, tcpPort)
	if err != nil {
		return db, nil, err
	}

	cfg := &config.Config{
		DBType:               opts.DBType,
		DBHost:               host,
		DBPort:               mapped.Port(),
		DBAppDatabase:        opts.Database,
		DBAppUser:            opts.User,
		DBAppPassword:        opts.Password,
		DBAppConnectionLimit: 5,
		LogLevel:             "error",
	}
	if err := waitForDB(cfg); err != nil {
		return db, nil, err
	}
	logf("%s ready at %s:%s", opts.DBType, host, mapped.Port())
	return db, cfg, nil
}

// waitForDB retries while the server finishes its own initialization
func waitForDB(cfg *config.Config) error {
	var err error
	for i := 0; i < 30; i++ {
		db, cerr := database.Connect(cfg, zap.NewNop())
		if err = cerr; err == nil {
			err = database.Ping(db)
			_ = database.Close(db)
			if err == nil {
				return nil
			}
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("%s not ready after 30 seconds: %w", cfg.DBType, err)
}

// StartBroker runs RabbitMQ and returns its AMQP url
func StartBroker(ctx context.Context, img, networkName string, logf Logf) (testcontainers.Container, string, error) {
	tcpPort, err := nat.NewPort("tcp", "5672")
	if err != nil {
		return nil, "", err
	}
	reportPull(ctx, img, logf)

	req := testcontainers.ContainerRequest{
		Image:        img,
		ExposedPorts: []string{string(tcpPort)},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	}
	if networkName != "" {
		req.Networks = []string{networkName}
		req.NetworkAliases = map[string][]string{networkName: {"rabbitmq"}}
	}
	broker, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return broker, "", fmt.Errorf("failed to start %s: %w", img, err)
	}

	host, err := broker.Host(ctx)
	if err != nil {
		return broker, "", err
	}
	mapped, err := broker.MappedPort(ctx, tcpPort)
	if err != nil {
		return broker, "", err
	}
	url := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mapped.Port())
	logf("rabbitmq ready at %s:%s", host, mapped.Port())
	return broker, url, nil
}

// startAuthorizer runs an Authorizer instance backed by its own sqlite file
func startAuthorizer(ctx context.Context, opts Options, networkName string, logf Logf) (testcontainers.Container, string, error) {
	tcpPort, err := nat.NewPort("tcp", "8080")
	if err != nil {
		return nil, "", err
	}
	reportPull(ctx, opts.AuthzImage, logf)

	authz, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        opts.AuthzImage,
			ExposedPorts: []string{string(tcpPort)},
			Env: map[string]string{
				"ENV":           "production",
				"CLIENT_ID":     opts.AuthzClient,
				"PORT":          tcpPort.Port(),
				"DATABASE_TYPE": "sqlite",
				"DATABASE_URL":  "authorizer.db",
				"ADMIN_SECRET":  opts.AuthzSecret,
				"ROLES":         "librarian,general",
				"DEFAULT_ROLES": "general",
			},
			WaitingFor: wait.ForLog("Authorizer running at PORT:").WithStartupTimeout(30 * time.Second),
			Networks:   []string{networkName},
			NetworkAliases: map[string][]string{
				networkName: {"authorizer"},
			},
		},
		Started: true,
	})
	if err != nil {
		return authz, "", fmt.Errorf("failed to start %s: %w", opts.AuthzImage, err)
	}

	host, err := authz.Host(ctx)
	if err != nil {
		return authz, "", err
	}
	mapped, err := authz.MappedPort(ctx, tcpPort)
	if err != nil {
		return authz, "", err
	}
	url := fmt.Sprintf("http://%s:%s", host, mapped.Port())
	logf("authorizer ready at %s", url)
	return authz, url, nil
}

// reportPull logs when an image is not present locally and will be pulled
func reportPull(ctx context.Context, img string, logf Logf) {
	found, err := imageExists(ctx, img)
	if err != nil {
		logf("Could not list local images: %v", err)
		return
	}
	if !found {
		logf("Image %s not found locally, pulling...", img)
	}
}

func imageExists(ctx context.Context, imageName string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return true, nil
			}
		}
	}

	return false, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
