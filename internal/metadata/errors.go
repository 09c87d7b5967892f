package metadata

import "fmt"

// InvalidCategoryNameError reports a category name that could not be mapped
// to an id in the target environment's directory.
type InvalidCategoryNameError struct {
	Name string
}

func (e InvalidCategoryNameError) Error() string {
	return fmt.Sprintf("the category %s could not be mapped to a valid category id", e.Name)
}

// InvalidRoleNameError reports a role name that could not be mapped to an id
// in the target environment's directory.
type InvalidRoleNameError struct {
	RoleName string
}

func (e InvalidRoleNameError) Error() string {
	return fmt.Sprintf("the role %s could not be mapped to a valid role id", e.RoleName)
}

// InvalidIamRoleArnError reports an IAM grant whose ARN does not match
// arn:aws:iam::<accountId>:role/<roleName>.
type InvalidIamRoleArnError struct {
	ARN string
}

func (e InvalidIamRoleArnError) Error() string {
	return fmt.Sprintf("the IAM role ARN %s is not a valid role ARN", e.ARN)
}
