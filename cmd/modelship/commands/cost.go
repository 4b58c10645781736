package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Hourly on-demand instance pricing, us-east-1.
var instanceHourlyCost = map[string]float64{
	"ml.t2.medium":  0.065,
	"ml.t2.large":   0.13,
	"ml.m5.large":   0.134,
	"ml.m5.xlarge":  0.269,
	"ml.m5.2xlarge": 0.538,
}

// requestCostPer1000 is the per-request surcharge in dollars per 1000
// invocations.
const requestCostPer1000 = 0.0004

func newCostCommand() *cobra.Command {
	var monthlyRequests int

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Estimate monthly endpoint cost",
		Long: `Estimate the monthly cost of the configured inference endpoint from the
declared instance type and count.

The estimate covers instance hours plus per-request charges; it does not
query billing APIs. Unknown instance types fall back to ml.m5.large
pricing.`,
		Example: `  # Estimate from the config alone
  modelship cost

  # Include expected request volume
  modelship cost --monthly-requests 500000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			spec := rt.cfg.Config.Deployment
			instanceType := spec.InstanceType
			if instanceType == "" {
				instanceType = "ml.m5.large"
			}
			instanceCount := spec.InstanceCount
			if instanceCount == 0 {
				instanceCount = 1
			}

			hourly, ok := instanceHourlyCost[instanceType]
			if !ok {
				hourly = instanceHourlyCost["ml.m5.large"]
				rt.logger.Warn().Str("instance_type", instanceType).Msg("Unknown instance type, using ml.m5.large pricing")
			}
			hourly *= float64(instanceCount)
			daily := hourly * 24
			monthly := daily * 30
			requestCost := float64(monthlyRequests) / 1000 * requestCostPer1000

			fmt.Printf("Cost estimate for: %s\n", spec.ID)
			fmt.Printf("Instance Type: %s\n", instanceType)
			fmt.Printf("Instance Count: %d\n", instanceCount)
			fmt.Println("\nInstance Costs:")
			fmt.Printf("  Hourly: $%.2f\n", hourly)
			fmt.Printf("  Daily: $%.2f\n", daily)
			fmt.Printf("  Monthly (30d): $%.2f\n", monthly)
			if monthlyRequests > 0 {
				fmt.Println("\nUsage:")
				fmt.Printf("  Monthly Requests: %d\n", monthlyRequests)
				fmt.Printf("  Request Cost: $%.4f\n", requestCost)
			}
			fmt.Println("\nTotal Estimated Cost:")
			fmt.Printf("  Monthly: $%.2f\n", monthly+requestCost)

			if instanceType != "ml.t2.medium" && monthlyRequests > 0 && monthlyRequests < 30000 {
				fmt.Println("\nLow usage for this instance class. Consider ml.t2.medium for development.")
			}
			if instanceCount > 1 && monthlyRequests > 0 && monthlyRequests < 100000 {
				fmt.Printf("\n%d instances but modest traffic. A single instance may suffice.\n", instanceCount)
			}
			if monthlyRequests >= 1000000 {
				fmt.Println("\nHigh request volume. Consider enabling endpoint autoscaling.")
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&monthlyRequests, "monthly-requests", 0, "expected monthly invocation count")

	return cmd
}
