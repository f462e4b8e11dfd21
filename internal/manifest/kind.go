package manifest

// Kind is the value of a document's kind field.
//
// The constants below are the closed set of kinds the loader and the
// resources in this module know how to reason about. Documents of any other
// kind (CassandraCluster, IngressClassParams, ...) are carried through as
// custom resources.
type Kind string

const (
	KindNamespace                Kind = "Namespace"
	KindServiceAccount           Kind = "ServiceAccount"
	KindConfigMap                Kind = "ConfigMap"
	KindSecret                   Kind = "Secret"
	KindService                  Kind = "Service"
	KindPod                      Kind = "Pod"
	KindDeployment               Kind = "Deployment"
	KindDaemonSet                Kind = "DaemonSet"
	KindStatefulSet              Kind = "StatefulSet"
	KindReplicaSet               Kind = "ReplicaSet"
	KindJob                      Kind = "Job"
	KindCronJob                  Kind = "CronJob"
	KindClusterRole              Kind = "ClusterRole"
	KindClusterRoleBinding       Kind = "ClusterRoleBinding"
	KindRole                     Kind = "Role"
	KindRoleBinding              Kind = "RoleBinding"
	KindCustomResourceDefinition Kind = "CustomResourceDefinition"
	KindStorageClass             Kind = "StorageClass"
	KindCSIDriver                Kind = "CSIDriver"
	KindAPIService               Kind = "APIService"
	KindIngress                  Kind = "Ingress"
	KindPodDisruptionBudget      Kind = "PodDisruptionBudget"
)

// kindList is a kubectl-style wrapper whose items are expanded on load.
const kindList Kind = "List"

var knownKinds = map[Kind]bool{
	KindNamespace:                true,
	KindServiceAccount:           true,
	KindConfigMap:                true,
	KindSecret:                   true,
	KindService:                  true,
	KindPod:                      true,
	KindDeployment:               true,
	KindDaemonSet:                true,
	KindStatefulSet:              true,
	KindReplicaSet:               true,
	KindJob:                      true,
	KindCronJob:                  true,
	KindClusterRole:              true,
	KindClusterRoleBinding:       true,
	KindRole:                     true,
	KindRoleBinding:              true,
	KindCustomResourceDefinition: true,
	KindStorageClass:             true,
	KindCSIDriver:                true,
	KindAPIService:               true,
	KindIngress:                  true,
	KindPodDisruptionBudget:      true,
}

// Known reports whether k is one of the built-in kinds.
func (k Kind) Known() bool {
	return knownKinds[k]
}

// Custom reports whether k is a custom resource kind.
func (k Kind) Custom() bool {
	return k != "" && !k.Known()
}

// ClusterScoped reports whether documents of this kind live outside any
// namespace.
func (k Kind) ClusterScoped() bool {
	switch k {
	case KindNamespace, KindClusterRole, KindClusterRoleBinding,
		KindCustomResourceDefinition, KindStorageClass, KindCSIDriver, KindAPIService:
		return true
	default:
		return false
	}
}

// podSpecPath returns where the pod spec lives for workload kinds.
func (k Kind) podSpecPath() ([]string, bool) {
	switch k {
	case KindPod:
		return []string{"spec"}, true
	case KindDeployment, KindDaemonSet, KindStatefulSet, KindReplicaSet, KindJob:
		return []string{"spec", "template", "spec"}, true
	case KindCronJob:
		return []string{"spec", "jobTemplate", "spec", "template", "spec"}, true
	default:
		return nil, false
	}
}
