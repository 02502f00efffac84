package workflow

import (
	"context"
	"fmt"

	"github.com/platinummonkey/gantry/pkg/activity"
)

// Revoke unwinds an issued grant: the broker client is deregistered, the
// gateway consumer deleted, the service access removed and the request
// flagged not issued. Every step tolerates already-removed external state,
// so revoking an already-revoked grant is a no-op.
func (s *Service) Revoke(ctx context.Context, requestID, actor string) error {
	req, err := s.records.GetAccessRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		s.log.WithField("request", requestID).Debug("request already gone, nothing to revoke")
		return nil
	}

	var ns string
	if req.ProductEnvironment != nil {
		ns = req.ProductEnvironment.Namespace()
	}
	act, err := s.activity.Record(ctx, activity.Entry{
		Type:      "AccessRequest",
		Name:      req.Name,
		Action:    "revoke",
		Result:    activity.ResultPending,
		Message:   fmt.Sprintf("Revoking access for %s", req.Name),
		Namespace: ns,
		Actor:     actor,
	})
	if err != nil {
		return err
	}

	if err := s.revoke(ctx, req); err != nil {
		s.metrics.ObserveWorkflowStep("revoke", "failure")
		if aerr := s.activity.Update(ctx, act.ID, activity.ResultFailure, err.Error()); aerr != nil {
			s.log.WithError(aerr).Warn("failed to record revocation failure")
		}
		return err
	}

	s.metrics.ObserveWorkflowStep("revoke", "success")
	if err := s.activity.Update(ctx, act.ID, activity.ResultSuccess, ""); err != nil {
		s.log.WithError(err).Warn("failed to finalize revocation activity")
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, req *AccessRequest) error {
	env := req.ProductEnvironment
	sa := req.ServiceAccess

	if sa != nil && sa.Consumer != nil {
		consumer := sa.Consumer

		if env != nil && clientFlow(env.Flow) && env.CredentialIssuer != nil {
			issuerEnv, token, err := s.issuerAccess(ctx, env)
			if err != nil {
				return err
			}
			if err := s.registrar.Deregister(ctx, issuerEnv.IssuerURL, token, consumer.Username); err != nil {
				return fmt.Errorf("client deregistration failed: %w", err)
			}
		}

		target := consumer.ExtForeignKey
		if target == "" {
			target = consumer.Username
		}
		if err := s.admin.DeleteConsumer(ctx, target); err != nil {
			return fmt.Errorf("consumer removal failed: %w", err)
		}
	}

	if sa != nil {
		if err := s.records.DeleteServiceAccesses(ctx, []string{sa.ID}); err != nil {
			return err
		}
	}
	if err := s.records.MarkRequestNotIssued(ctx, req.ID); err != nil {
		return err
	}

	s.log.WithField("request", req.ID).Info("access revoked")
	return nil
}
