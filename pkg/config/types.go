package config

import (
	"time"

	"github.com/modelship/modelship/pkg/engine"
)

// DeploymentConfig is the parsed deployment declaration.
type DeploymentConfig struct {
	// Deployment holds deployment-wide settings.
	Deployment DeploymentSpec `json:"deployment" validate:"required"`

	// Modules lists the module declarations in file order.
	Modules []ModuleSpec `json:"modules" validate:"required,min=1,dive"`
}

// DeploymentSpec holds deployment-wide settings.
type DeploymentSpec struct {
	// ID is the deployment identifier, used to key state and locks.
	ID string `json:"id" validate:"required,hostname_rfc1123"`

	// Region is the cloud region modules are provisioned into.
	Region string `json:"region,omitempty"`

	// EndpointURL is the inference endpoint base URL used by the verifier.
	EndpointURL string `json:"endpoint_url,omitempty" validate:"omitempty,url"`

	// NotifyEmail receives deployment notifications.
	NotifyEmail string `json:"notify_email,omitempty" validate:"omitempty,email"`

	// InstanceType is the default endpoint instance type.
	InstanceType string `json:"instance_type,omitempty" validate:"omitempty,oneof=ml.t2.medium ml.t2.large ml.m5.large ml.m5.xlarge ml.m5.2xlarge"`

	// InstanceCount is the default endpoint instance count.
	InstanceCount int `json:"instance_count,omitempty" validate:"omitempty,min=1,max=10"`

	// ImageRepository is the container repository holding model images,
	// cleaned during teardown.
	ImageRepository string `json:"image_repository,omitempty"`
}

// ModuleSpec is one module declaration as written in the config file.
type ModuleSpec struct {
	// Name is the unique module name.
	Name string `json:"name" validate:"required"`

	// Source is the module definition path handed to the engine.
	Source string `json:"source" validate:"required"`

	// Enabled toggles the module; absent means enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// DependsOn lists upstream module names.
	DependsOn []string `json:"depends_on,omitempty"`

	// Inputs maps input names to literal values or references. A reference
	// is a map of the form {from: "module", output: "name"}.
	Inputs map[string]interface{} `json:"inputs,omitempty"`

	// Compute is an optional Starlark script whose globals become
	// additional literal inputs.
	Compute string `json:"compute,omitempty"`
}

// IsEnabled resolves the enabled toggle, defaulting to true.
func (m ModuleSpec) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ParsedConfig is the result of loading a configuration file.
type ParsedConfig struct {
	// Config is the validated declaration.
	Config *DeploymentConfig

	// Modules is the declaration converted for the engine, in file order.
	Modules []engine.Module

	// SourceFile is the file the configuration was loaded from.
	SourceFile string

	// ParsedAt is when parsing completed.
	ParsedAt time.Time
}
