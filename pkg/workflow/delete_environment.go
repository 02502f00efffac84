package workflow

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/gantry/pkg/activity"
)

// DeletionBlockedError rejects an environment deletion while consumers
// still hold access.
type DeletionBlockedError struct {
	Consumers int
	Where     string
}

func (e *DeletionBlockedError) Error() string {
	verb := "consumers have"
	if e.Consumers == 1 {
		verb = "consumer has"
	}
	return fmt.Sprintf("%d %s access to %s.", e.Consumers, verb, e.Where)
}

// ValidateEnvironmentDeletion rejects deletion while any consumer still has
// access through the environment.
func (s *Service) ValidateEnvironmentDeletion(ctx context.Context, ns, envID string) error {
	accessList, err := s.records.ListServiceAccessesByEnvironment(ctx, ns, envID)
	if err != nil {
		return err
	}
	if len(accessList) > 0 {
		return &DeletionBlockedError{Consumers: len(accessList), Where: "products in this namespace"}
	}
	return nil
}

// DeleteEnvironment removes an environment and its dependent records.
// Dependents go first: service accesses, then access requests, then the
// environment itself. The activity record is written before anything is
// mutated, with the affected access list attached, so a partial failure
// leaves an audit trail of what was in flight.
func (s *Service) DeleteEnvironment(ctx context.Context, ns, envID string, force bool, actor string) error {
	accessList, err := s.records.ListServiceAccessesByEnvironment(ctx, ns, envID)
	if err != nil {
		return err
	}
	if !force && len(accessList) > 0 {
		return &DeletionBlockedError{Consumers: len(accessList), Where: "this environment"}
	}

	act, err := s.activity.Record(ctx, activity.Entry{
		Type:      "Environment",
		Name:      ns,
		Action:    "delete",
		Result:    activity.ResultPending,
		Message:   fmt.Sprintf("Deleted Environment in %s", ns),
		Namespace: ns,
		Actor:     actor,
		Blob:      map[string]interface{}{"access": accessList},
	})
	if err != nil {
		return err
	}

	if err := s.cascadeDelete(ctx, envID, accessList); err != nil {
		s.metrics.ObserveWorkflowStep("delete-environment", "failure")
		if aerr := s.activity.Update(ctx, act.ID, activity.ResultFailure, err.Error()); aerr != nil {
			s.log.WithError(aerr).Warn("failed to record environment deletion failure")
		}
		return err
	}

	s.metrics.ObserveWorkflowStep("delete-environment", "success")
	if err := s.activity.Update(ctx, act.ID, activity.ResultSuccess, ""); err != nil {
		s.log.WithError(err).Warn("failed to finalize environment deletion activity")
	}
	s.log.WithFields(logrus.Fields{"namespace": ns, "environment": envID}).Info("environment deleted")
	return nil
}

func (s *Service) cascadeDelete(ctx context.Context, envID string, accessList []ServiceAccess) error {
	accessIDs := make([]string, 0, len(accessList))
	for _, sa := range accessList {
		accessIDs = append(accessIDs, sa.ID)
	}
	if err := s.records.DeleteServiceAccesses(ctx, accessIDs); err != nil {
		return err
	}

	requestIDs, err := s.records.ListAccessRequestIDsByEnvironment(ctx, envID)
	if err != nil {
		return err
	}
	if err := s.records.DeleteAccessRequests(ctx, requestIDs); err != nil {
		return err
	}

	return s.records.DeleteEnvironment(ctx, envID)
}

// DeleteNamespace runs the environment deletion workflow for every
// environment under the namespace.
func (s *Service) DeleteNamespace(ctx context.Context, ns string, force bool, actor string) error {
	envs, err := s.records.ListEnvironmentsByNamespace(ctx, ns)
	if err != nil {
		return err
	}
	for _, env := range envs {
		if err := s.DeleteEnvironment(ctx, ns, env.ID, force, actor); err != nil {
			return err
		}
	}
	return nil
}
